// Package aws implements instance listing and attachment correlation for AWS.
package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/yairfalse/tether/pkg/resource"
)

// StepObserver is told how each correlation step ended.
type StepObserver func(ctx context.Context, c resource.Category, r resource.StepResult, d time.Duration)

// Config holds AWS plugin configuration.
type Config struct {
	Region  string
	Profile string

	// ReuseIndex resolves the account-wide index once per run.
	ReuseIndex bool
	// TargetGroupLBTypes lists load balancer types whose target groups are resolved.
	TargetGroupLBTypes []string
	LBPageSize         int32

	Observe StepObserver
	Now     func() time.Time
}

// Plugin lists EC2 instances and correlates their attachments.
type Plugin struct {
	region string

	ec2Client EC2API
	elbClient ELBAPI
	s3Client  S3API
	asgClient AutoScalingAPI

	reuseIndex bool
	tgTypes    []string
	pageSize   int32
	observe    StepObserver
	now        func() time.Time

	index *accountIndex
}

// New creates a plugin with clients built from the default credential chain.
func New(ctx context.Context, cfg Config) (*Plugin, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = awsCfg.Region
	}

	return NewWithClients(cfg, Clients{
		EC2:         ec2.NewFromConfig(awsCfg),
		ELB:         elasticloadbalancingv2.NewFromConfig(awsCfg),
		S3:          s3.NewFromConfig(awsCfg),
		AutoScaling: autoscaling.NewFromConfig(awsCfg),
	}), nil
}

// NewWithClients creates a plugin around already-built clients.
func NewWithClients(cfg Config, clients Clients) *Plugin {
	p := &Plugin{
		region:     cfg.Region,
		ec2Client:  clients.EC2,
		elbClient:  clients.ELB,
		s3Client:   clients.S3,
		asgClient:  clients.AutoScaling,
		reuseIndex: cfg.ReuseIndex,
		tgTypes:    cfg.TargetGroupLBTypes,
		pageSize:   cfg.LBPageSize,
		observe:    cfg.Observe,
		now:        cfg.Now,
	}
	if len(p.tgTypes) == 0 {
		p.tgTypes = []string{"application"}
	}
	if p.pageSize == 0 {
		p.pageSize = 400
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "aws"
}

// Region returns the region the clients talk to.
func (p *Plugin) Region() string {
	return p.region
}

// indexFor returns the account index for one correlation. With reuse on,
// the same index serves every instance of the run.
func (p *Plugin) indexFor() *accountIndex {
	if !p.reuseIndex {
		return p.newIndex()
	}
	if p.index == nil {
		p.index = p.newIndex()
	}
	return p.index
}
