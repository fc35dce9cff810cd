// Package report renders instances and their attachments for humans.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/yairfalse/tether/pkg/resource"
)

const (
	noResources = "No resources found"
	separator   = "=================================================="
)

// Renderer formats instances and attachments as text.
type Renderer struct {
	heading *color.Color
	key     *color.Color
	failed  *color.Color
}

// NewRenderer creates a renderer. With useColor off, output is plain text.
func NewRenderer(useColor bool) *Renderer {
	r := &Renderer{
		heading: color.New(color.Bold),
		key:     color.New(color.FgCyan),
		failed:  color.New(color.FgRed),
	}
	for _, c := range []*color.Color{r.heading, r.key, r.failed} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

// RenderInstance writes the five instance fields.
func (r *Renderer) RenderInstance(w io.Writer, inst resource.Instance) error {
	lines := []resource.Field{
		{Key: "Instance ID", Value: inst.ID},
		{Key: "Instance Type", Value: inst.Type},
		{Key: "State", Value: inst.State},
		{Key: "Public IP", Value: inst.PublicIP},
		{Key: "Private IP", Value: inst.PrivateIP},
	}
	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "%s %s\n", r.heading.Sprint(l.Key+":"), l.Value); err != nil {
			return err
		}
	}
	return nil
}

// RenderAttachments writes every category in report order, each followed by
// its records or "No resources found".
func (r *Renderer) RenderAttachments(w io.Writer, a *resource.Attachments) error {
	var b strings.Builder
	b.WriteString("Attached Resources:\n")

	for _, c := range resource.Categories {
		b.WriteString(r.heading.Sprint(string(c)+":") + "\n")

		step := a.Steps[c]
		records := a.Records(c)
		switch {
		case step.Status == resource.StatusFailed:
			b.WriteString(r.failed.Sprintf("Lookup failed: %v", step.Err) + "\n")
		case len(records) == 0:
			b.WriteString(noResources + "\n")
		default:
			for _, rec := range records {
				for _, f := range rec.Fields() {
					fmt.Fprintf(&b, "  %s %s\n", r.key.Sprint(f.Key+":"), f.Value)
				}
			}
		}
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Render writes one full reporting cycle: the instance, its attachments,
// and the separator that precedes the next instance.
func (r *Renderer) Render(w io.Writer, entry resource.Entry) error {
	if err := r.RenderInstance(w, entry.Instance); err != nil {
		return err
	}

	if entry.Err != nil {
		if _, err := fmt.Fprintf(w, "%s\n", r.failed.Sprintf("Correlation failed: %v", entry.Err)); err != nil {
			return err
		}
	} else if entry.Attachments != nil {
		if err := r.RenderAttachments(w, entry.Attachments); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(w, "\n%s\n\n", separator)
	return err
}

// RenderSummary writes one table row per entry with the record count of each
// category. Failed categories show "!".
func (r *Renderer) RenderSummary(w io.Writer, entries []resource.Entry) {
	table := tablewriter.NewWriter(w)
	header := []string{"Instance", "State"}
	for _, c := range resource.Categories {
		header = append(header, string(c))
	}
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, e := range entries {
		row := []string{e.Instance.ID, e.Instance.State}
		for _, c := range resource.Categories {
			row = append(row, summaryCell(e, c))
		}
		table.Append(row)
	}
	table.Render()
}

func summaryCell(e resource.Entry, c resource.Category) string {
	if e.Err != nil || e.Attachments == nil {
		return "!"
	}
	if e.Attachments.Steps[c].Status == resource.StatusFailed {
		return "!"
	}
	return strconv.Itoa(e.Attachments.Count(c))
}
