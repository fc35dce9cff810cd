// Tether - EC2 attachment inventory
// List. Correlate. Report.
package main

import "os"

func main() {
	os.Exit(Execute())
}
