package aws

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/btree"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/tether/pkg/resource"
)

// accountIndex caches the account-wide data that correlation would
// otherwise re-read for every instance: which instance ids each load
// balancer targets, and every readable bucket policy. Each half is loaded
// on first use; a failed load is retried by the next caller.
type accountIndex struct {
	elb      ELBAPI
	s3       S3API
	tgTypes  []string
	pageSize int32

	lbLoaded      bool
	loadBalancers []lbTargets

	bucketsLoaded bool
	policies      *btree.BTreeG[bucketPolicy]
}

type lbTargets struct {
	ref     resource.LoadBalancer
	targets map[string]struct{}
}

type bucketPolicy struct {
	name   string
	policy string
}

func (p *Plugin) newIndex() *accountIndex {
	return &accountIndex{
		elb:      p.elbClient,
		s3:       p.s3Client,
		tgTypes:  p.tgTypes,
		pageSize: p.pageSize,
	}
}

// loadBalancersFor returns the load balancers that have instanceID as a
// registered target, in DescribeLoadBalancers order.
func (x *accountIndex) loadBalancersFor(ctx context.Context, instanceID string) ([]resource.LoadBalancer, error) {
	if err := x.loadLoadBalancers(ctx); err != nil {
		return nil, err
	}

	var matched []resource.LoadBalancer
	for _, lb := range x.loadBalancers {
		if _, ok := lb.targets[instanceID]; ok {
			matched = append(matched, lb.ref)
		}
	}
	return matched, nil
}

func (x *accountIndex) loadLoadBalancers(ctx context.Context) error {
	if x.lbLoaded {
		return nil
	}

	output, err := x.elb.DescribeLoadBalancers(ctx, &elasticloadbalancingv2.DescribeLoadBalancersInput{
		PageSize: aws.Int32(x.pageSize),
	})
	if err != nil {
		return classify("describe load balancers", err)
	}

	loadBalancers := make([]lbTargets, 0, len(output.LoadBalancers))
	for _, lb := range output.LoadBalancers {
		entry := lbTargets{
			ref: resource.LoadBalancer{
				Name: aws.ToString(lb.LoadBalancerName),
				ARN:  aws.ToString(lb.LoadBalancerArn),
			},
			targets: make(map[string]struct{}),
		}

		if slices.Contains(x.tgTypes, string(lb.Type)) {
			if err := x.resolveTargets(ctx, &entry); err != nil {
				return err
			}
		}
		loadBalancers = append(loadBalancers, entry)
	}

	x.loadBalancers = loadBalancers
	x.lbLoaded = true
	log.Debug().Ctx(ctx).Int("load_balancers", len(loadBalancers)).Msg("load balancer topology indexed")
	return nil
}

// resolveTargets fills entry.targets from the target health of every
// target group of the load balancer. Groups or balancers deleted mid-scan
// contribute no targets.
func (x *accountIndex) resolveTargets(ctx context.Context, entry *lbTargets) error {
	groups, err := x.elb.DescribeTargetGroups(ctx, &elasticloadbalancingv2.DescribeTargetGroupsInput{
		LoadBalancerArn: aws.String(entry.ref.ARN),
	})
	if err != nil {
		err = classify("describe target groups", err)
		if IsRecoverable(err) {
			log.Debug().Ctx(ctx).Err(err).Str("load_balancer", entry.ref.Name).Msg("load balancer vanished")
			return nil
		}
		return err
	}

	for _, tg := range groups.TargetGroups {
		health, err := x.elb.DescribeTargetHealth(ctx, &elasticloadbalancingv2.DescribeTargetHealthInput{
			TargetGroupArn: tg.TargetGroupArn,
		})
		if err != nil {
			err = classify("describe target health", err)
			if IsRecoverable(err) {
				log.Debug().Ctx(ctx).Err(err).Str("target_group", aws.ToString(tg.TargetGroupArn)).Msg("target group vanished")
				continue
			}
			return err
		}

		for _, desc := range health.TargetHealthDescriptions {
			if desc.Target == nil || desc.Target.Id == nil {
				continue
			}
			entry.targets[aws.ToString(desc.Target.Id)] = struct{}{}
		}
	}
	return nil
}

// bucketsFor returns the buckets whose policy text contains instanceID as a
// literal substring, ordered by bucket name. This is a heuristic: it does
// not look at IAM role policies, and any mention of the id counts.
func (x *accountIndex) bucketsFor(ctx context.Context, instanceID string, observedAt time.Time) ([]resource.Bucket, error) {
	if err := x.loadBuckets(ctx); err != nil {
		return nil, err
	}

	var matched []resource.Bucket
	x.policies.Ascend(func(bp bucketPolicy) bool {
		if policyMentions(bp.policy, instanceID) {
			matched = append(matched, resource.Bucket{Name: bp.name, ObservedAt: observedAt})
		}
		return true
	})
	return matched, nil
}

func policyMentions(policy, instanceID string) bool {
	return instanceID != "" && strings.Contains(policy, instanceID)
}

// inRegion sends an S3 call to the bucket's own region. The SDK does not
// follow cross-region redirects, so a bucket outside the client's region
// would otherwise fail with PermanentRedirect.
func inRegion(region *string) func(*s3.Options) {
	return func(o *s3.Options) {
		if r := aws.ToString(region); r != "" {
			o.Region = r
		}
	}
}

func (x *accountIndex) loadBuckets(ctx context.Context) error {
	if x.bucketsLoaded {
		return nil
	}

	output, err := x.s3.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return classify("list buckets", err)
	}

	policies := btree.NewG[bucketPolicy](16, func(a, b bucketPolicy) bool {
		return a.name < b.name
	})
	for _, bucket := range output.Buckets {
		name := aws.ToString(bucket.Name)
		policy, err := x.s3.GetBucketPolicy(ctx, &s3.GetBucketPolicyInput{Bucket: bucket.Name}, inRegion(bucket.BucketRegion))
		if err != nil {
			if ctx.Err() != nil {
				return classify("get bucket policy", err)
			}
			// No policy or access denied: read as "not connected".
			err = classify("get bucket policy", err)
			log.Debug().Ctx(ctx).Err(err).Str("bucket", name).Str("fault", string(KindOf(err))).Msg("bucket policy unreadable")
			continue
		}
		policies.ReplaceOrInsert(bucketPolicy{name: name, policy: aws.ToString(policy.Policy)})
	}

	x.policies = policies
	x.bucketsLoaded = true
	log.Debug().Ctx(ctx).Int("buckets", len(output.Buckets)).Int("with_policy", policies.Len()).Msg("bucket policies indexed")
	return nil
}
