// Package resource defines the instance and attachment model for Tether.
package resource

import (
	"strconv"
	"time"
)

// NotAvailable marks an optional instance address the vendor did not return.
// It is a display sentinel, never a real address.
const NotAvailable = "N/A"

// Instance is the flat record the lister produces for one EC2 instance.
type Instance struct {
	ID        string `json:"id" yaml:"id"`                 // e.g. "i-abc123"
	Type      string `json:"type" yaml:"type"`             // e.g. "t3.micro"
	State     string `json:"state" yaml:"state"`           // e.g. "running"
	PublicIP  string `json:"public_ip" yaml:"public_ip"`   // NotAvailable when unset
	PrivateIP string `json:"private_ip" yaml:"private_ip"` // NotAvailable when unset
}

// OrNotAvailable returns s, or NotAvailable when s is empty.
func OrNotAvailable(s string) string {
	if s == "" {
		return NotAvailable
	}
	return s
}

// Field is one rendered key/value of a record.
type Field struct {
	Key   string
	Value string
}

// Record is implemented by every category record so reporters can render
// them without knowing the concrete type.
type Record interface {
	Fields() []Field
}

// Volume is an EBS volume attached to the instance.
type Volume struct {
	ID          string             `yaml:"volume_id"`
	SizeGiB     int32              `yaml:"size"`
	Attachments []VolumeAttachment `yaml:"attachments"`
}

// VolumeAttachment is one attachment of a volume.
type VolumeAttachment struct {
	InstanceID string `yaml:"instance_id"`
	Device     string `yaml:"device"`
	State      string `yaml:"state"`
}

func (v Volume) Fields() []Field {
	fields := []Field{
		{"VolumeId", v.ID},
		{"Size", strconv.Itoa(int(v.SizeGiB))},
	}
	for _, a := range v.Attachments {
		fields = append(fields, Field{"Attachment", a.InstanceID + " " + a.Device + " (" + a.State + ")"})
	}
	return fields
}

// SecurityGroup is a security group referenced by the instance descriptor.
type SecurityGroup struct {
	ID   string `yaml:"group_id"`
	Name string `yaml:"group_name"`
}

func (g SecurityGroup) Fields() []Field {
	return []Field{{"GroupId", g.ID}, {"GroupName", g.Name}}
}

// ElasticIP is a public address associated with one of the instance's interfaces.
type ElasticIP struct {
	PublicIP string `yaml:"public_ip"`
}

func (e ElasticIP) Fields() []Field {
	return []Field{{"PublicIp", e.PublicIP}}
}

// NetworkInterface is a projection of an ENI attached to the instance.
type NetworkInterface struct {
	ID          string `yaml:"network_interface_id"`
	Status      string `yaml:"status"`
	PrivateIP   string `yaml:"private_ip"`
	SubnetID    string `yaml:"subnet_id"`
	VpcID       string `yaml:"vpc_id"`
	MACAddress  string `yaml:"mac_address"`
	Description string `yaml:"description,omitempty"`
}

func (n NetworkInterface) Fields() []Field {
	fields := []Field{
		{"NetworkInterfaceId", n.ID},
		{"Status", n.Status},
		{"PrivateIpAddress", n.PrivateIP},
		{"SubnetId", n.SubnetID},
		{"VpcId", n.VpcID},
		{"MacAddress", n.MACAddress},
	}
	if n.Description != "" {
		fields = append(fields, Field{"Description", n.Description})
	}
	return fields
}

// LoadBalancer is a load balancer with the instance registered as a target.
type LoadBalancer struct {
	Name string `yaml:"load_balancer_name"`
	ARN  string `yaml:"load_balancer_arn"`
}

func (l LoadBalancer) Fields() []Field {
	return []Field{{"LoadBalancerName", l.Name}, {"LoadBalancerArn", l.ARN}}
}

// KeyPair is the descriptor of the key pair named by the instance.
type KeyPair struct {
	Name        string `yaml:"key_name"`
	ID          string `yaml:"key_pair_id"`
	Fingerprint string `yaml:"key_fingerprint"`
	Type        string `yaml:"key_type"`
}

func (k KeyPair) Fields() []Field {
	return []Field{
		{"KeyName", k.Name},
		{"KeyPairId", k.ID},
		{"KeyFingerprint", k.Fingerprint},
		{"KeyType", k.Type},
	}
}

// Image is the AMI the instance was launched from. Name is empty when the
// image has since been deregistered.
type Image struct {
	ID   string `yaml:"image_id"`
	Name string `yaml:"name"`
}

func (i Image) Fields() []Field {
	return []Field{{"ImageId", i.ID}, {"Name", OrNotAvailable(i.Name)}}
}

// Bucket is an S3 bucket whose policy text mentions the instance id.
// ObservedAt is when the correlation was made, not when the bucket was created.
type Bucket struct {
	Name       string    `yaml:"name"`
	ObservedAt time.Time `yaml:"observed_at"`
}

func (b Bucket) Fields() []Field {
	return []Field{{"Name", b.Name}, {"ObservedAt", b.ObservedAt.UTC().Format(time.RFC3339)}}
}

// AutoScalingGroup is a group the instance is a member of.
type AutoScalingGroup struct {
	Name string `yaml:"name"`
}

func (a AutoScalingGroup) Fields() []Field {
	return []Field{{"AutoScalingGroupName", a.Name}}
}
