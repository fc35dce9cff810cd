package resource

import (
	"errors"
	"fmt"
)

// Category is one of the fixed attachment categories.
type Category string

const (
	CategoryEBSVolumes        Category = "EBSVolumes"
	CategorySecurityGroups    Category = "SecurityGroups"
	CategoryElasticIPs        Category = "ElasticIPs"
	CategoryS3Buckets         Category = "S3Buckets"
	CategoryENIs              Category = "ENIs"
	CategoryKeyPairs          Category = "KeyPairs"
	CategoryAMIs              Category = "AMIs"
	CategoryAutoScalingGroups Category = "AutoScalingGroups"
	CategoryLoadBalancers     Category = "LoadBalancers"
)

// Categories lists every category in report order.
var Categories = []Category{
	CategoryEBSVolumes,
	CategorySecurityGroups,
	CategoryElasticIPs,
	CategoryS3Buckets,
	CategoryENIs,
	CategoryKeyPairs,
	CategoryAMIs,
	CategoryAutoScalingGroups,
	CategoryLoadBalancers,
}

// Status is the outcome of one correlation step.
type Status string

const (
	// StatusOK means the step ran and found at least one record.
	StatusOK Status = "ok"
	// StatusEmpty means the step ran, or its subject was absent, and found nothing.
	StatusEmpty Status = "empty"
	// StatusFailed means the step could not complete; its records are empty.
	StatusFailed Status = "failed"
)

// StepResult records how a category was resolved.
type StepResult struct {
	Status Status `yaml:"status"`
	Err    error  `yaml:"-"`
}

// Attachments is the set of resources correlated to one instance.
// Every category is always present; absence is an empty slice.
type Attachments struct {
	InstanceID        string             `yaml:"instance_id"`
	Volumes           []Volume           `yaml:"EBSVolumes"`
	SecurityGroups    []SecurityGroup    `yaml:"SecurityGroups"`
	ElasticIPs        []ElasticIP        `yaml:"ElasticIPs"`
	Buckets           []Bucket           `yaml:"S3Buckets"`
	NetworkInterfaces []NetworkInterface `yaml:"ENIs"`
	KeyPairs          []KeyPair          `yaml:"KeyPairs"`
	Images            []Image            `yaml:"AMIs"`
	AutoScalingGroups []AutoScalingGroup `yaml:"AutoScalingGroups"`
	LoadBalancers     []LoadBalancer     `yaml:"LoadBalancers"`

	Steps map[Category]StepResult `yaml:"-"`
}

// NewAttachments returns an Attachments with every category empty.
func NewAttachments(instanceID string) *Attachments {
	a := &Attachments{
		InstanceID:        instanceID,
		Volumes:           []Volume{},
		SecurityGroups:    []SecurityGroup{},
		ElasticIPs:        []ElasticIP{},
		Buckets:           []Bucket{},
		NetworkInterfaces: []NetworkInterface{},
		KeyPairs:          []KeyPair{},
		Images:            []Image{},
		AutoScalingGroups: []AutoScalingGroup{},
		LoadBalancers:     []LoadBalancer{},
		Steps:             make(map[Category]StepResult, len(Categories)),
	}
	for _, c := range Categories {
		a.Steps[c] = StepResult{Status: StatusEmpty}
	}
	return a
}

// Records returns the records of one category in discovery order.
func (a *Attachments) Records(c Category) []Record {
	var out []Record
	switch c {
	case CategoryEBSVolumes:
		out = toRecords(a.Volumes)
	case CategorySecurityGroups:
		out = toRecords(a.SecurityGroups)
	case CategoryElasticIPs:
		out = toRecords(a.ElasticIPs)
	case CategoryS3Buckets:
		out = toRecords(a.Buckets)
	case CategoryENIs:
		out = toRecords(a.NetworkInterfaces)
	case CategoryKeyPairs:
		out = toRecords(a.KeyPairs)
	case CategoryAMIs:
		out = toRecords(a.Images)
	case CategoryAutoScalingGroups:
		out = toRecords(a.AutoScalingGroups)
	case CategoryLoadBalancers:
		out = toRecords(a.LoadBalancers)
	}
	return out
}

func toRecords[T Record](items []T) []Record {
	out := make([]Record, 0, len(items))
	for _, it := range items {
		out = append(out, it)
	}
	return out
}

// Count returns the number of records in a category.
func (a *Attachments) Count(c Category) int {
	return len(a.Records(c))
}

// Resolve marks a category ok or empty depending on whether it has records.
func (a *Attachments) Resolve(c Category) {
	if a.Count(c) > 0 {
		a.Steps[c] = StepResult{Status: StatusOK}
		return
	}
	a.Steps[c] = StepResult{Status: StatusEmpty}
}

// Fail marks a category failed and clears its records.
func (a *Attachments) Fail(c Category, err error) {
	a.Clear(c)
	a.Steps[c] = StepResult{Status: StatusFailed, Err: err}
}

// Clear drops any records of a category without touching its step status.
func (a *Attachments) Clear(c Category) {
	switch c {
	case CategoryEBSVolumes:
		a.Volumes = []Volume{}
	case CategorySecurityGroups:
		a.SecurityGroups = []SecurityGroup{}
	case CategoryElasticIPs:
		a.ElasticIPs = []ElasticIP{}
	case CategoryS3Buckets:
		a.Buckets = []Bucket{}
	case CategoryENIs:
		a.NetworkInterfaces = []NetworkInterface{}
	case CategoryKeyPairs:
		a.KeyPairs = []KeyPair{}
	case CategoryAMIs:
		a.Images = []Image{}
	case CategoryAutoScalingGroups:
		a.AutoScalingGroups = []AutoScalingGroup{}
	case CategoryLoadBalancers:
		a.LoadBalancers = []LoadBalancer{}
	}
}

// Failed returns the failed categories in report order.
func (a *Attachments) Failed() []Category {
	var failed []Category
	for _, c := range Categories {
		if a.Steps[c].Status == StatusFailed {
			failed = append(failed, c)
		}
	}
	return failed
}

// Partial reports whether any category failed.
func (a *Attachments) Partial() bool {
	return len(a.Failed()) > 0
}

// Err joins the errors of all failed categories.
func (a *Attachments) Err() error {
	var errs []error
	for _, c := range a.Failed() {
		errs = append(errs, fmt.Errorf("%s: %w", c, a.Steps[c].Err))
	}
	return errors.Join(errs...)
}

// Entry is the output of one reporting cycle.
type Entry struct {
	Instance    Instance
	Attachments *Attachments
	// Err is set when correlation could not run at all.
	Err error
}
