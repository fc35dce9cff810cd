package aws

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/tether/pkg/resource"
)

var tracer = otel.Tracer("github.com/yairfalse/tether/internal/plugin/aws")

// target is what every step correlates against: the instance id, its
// descriptor if it could be fetched, and why not otherwise.
type target struct {
	id            string
	descriptor    *ec2types.Instance
	descriptorErr error
	index         *accountIndex
	observedAt    time.Time
}

// instance returns the descriptor or the error that prevented fetching it.
func (t *target) instance() (*ec2types.Instance, error) {
	if t.descriptorErr != nil {
		return nil, t.descriptorErr
	}
	return t.descriptor, nil
}

type step struct {
	category resource.Category
	fn       func(context.Context, *target, *resource.Attachments) error
}

// steps returns the correlation steps in execution order.
func (p *Plugin) steps() []step {
	return []step{
		{resource.CategoryEBSVolumes, p.correlateVolumes},
		{resource.CategorySecurityGroups, p.correlateSecurityGroups},
		{resource.CategoryElasticIPs, p.correlateElasticIPs},
		{resource.CategoryENIs, p.correlateNetworkInterfaces},
		{resource.CategoryLoadBalancers, p.correlateLoadBalancers},
		{resource.CategoryKeyPairs, p.correlateKeyPairs},
		{resource.CategoryAMIs, p.correlateImages},
		{resource.CategoryS3Buckets, p.correlateBuckets},
		{resource.CategoryAutoScalingGroups, p.correlateAutoScalingGroups},
	}
}

// Correlate discovers the resources attached to or associated with one
// instance. A failing step never stops the others: not-found and malformed
// faults leave the category empty, anything else marks it failed. The only
// error returned is the context's.
func (p *Plugin) Correlate(ctx context.Context, instanceID string) (*resource.Attachments, error) {
	ctx, span := tracer.Start(ctx, "aws.Correlate", trace.WithAttributes(
		attribute.String("instance_id", instanceID),
		attribute.String("region", p.region),
	))
	defer span.End()

	t := &target{
		id:         instanceID,
		index:      p.indexFor(),
		observedAt: p.now(),
	}
	t.descriptor, t.descriptorErr = p.describeInstance(ctx, instanceID)

	attachments := resource.NewAttachments(instanceID)
	for _, s := range p.steps() {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		p.runStep(ctx, s, t, attachments)
	}
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if attachments.Partial() {
		span.SetStatus(codes.Error, "partial correlation")
	}
	return attachments, nil
}

func (p *Plugin) runStep(ctx context.Context, s step, t *target, attachments *resource.Attachments) {
	ctx, span := tracer.Start(ctx, "aws.correlate."+string(s.category))
	defer span.End()

	start := time.Now()
	err := s.fn(ctx, t, attachments)
	logger := log.With().Str("instance_id", t.id).Str("category", string(s.category)).Logger()

	switch {
	case err == nil:
		attachments.Resolve(s.category)
	case IsRecoverable(err):
		logger.Debug().Ctx(ctx).Err(err).Msg("treating as no resources")
		attachments.Clear(s.category)
		attachments.Resolve(s.category)
	default:
		logger.Warn().Ctx(ctx).Err(err).Msg("correlation step failed")
		attachments.Fail(s.category, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	result := attachments.Steps[s.category]
	span.SetAttributes(
		attribute.String("status", string(result.Status)),
		attribute.Int("count", attachments.Count(s.category)),
	)
	if p.observe != nil {
		p.observe(ctx, s.category, result, time.Since(start))
	}
}

func (p *Plugin) describeInstance(ctx context.Context, instanceID string) (*ec2types.Instance, error) {
	output, err := p.ec2Client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return nil, classify("describe instance", err)
	}

	for _, reservation := range output.Reservations {
		for _, instance := range reservation.Instances {
			if aws.ToString(instance.InstanceId) == instanceID {
				return &instance, nil
			}
		}
	}
	return nil, notFound("describe instance", "instance %s not returned", instanceID)
}

// correlateVolumes lists the EBS volumes attached to the instance.
func (p *Plugin) correlateVolumes(ctx context.Context, t *target, a *resource.Attachments) error {
	output, err := p.ec2Client.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{
		Filters: []ec2types.Filter{{Name: aws.String("attachment.instance-id"), Values: []string{t.id}}},
	})
	if err != nil {
		return classify("describe volumes", err)
	}

	for _, vol := range output.Volumes {
		v := resource.Volume{
			ID:          aws.ToString(vol.VolumeId),
			SizeGiB:     aws.ToInt32(vol.Size),
			Attachments: make([]resource.VolumeAttachment, 0, len(vol.Attachments)),
		}
		for _, att := range vol.Attachments {
			v.Attachments = append(v.Attachments, resource.VolumeAttachment{
				InstanceID: aws.ToString(att.InstanceId),
				Device:     aws.ToString(att.Device),
				State:      string(att.State),
			})
		}
		a.Volumes = append(a.Volumes, v)
	}
	return nil
}

// correlateSecurityGroups copies the groups from the instance descriptor.
func (p *Plugin) correlateSecurityGroups(_ context.Context, t *target, a *resource.Attachments) error {
	instance, err := t.instance()
	if err != nil {
		return err
	}

	for _, group := range instance.SecurityGroups {
		a.SecurityGroups = append(a.SecurityGroups, resource.SecurityGroup{
			ID:   aws.ToString(group.GroupId),
			Name: aws.ToString(group.GroupName),
		})
	}
	return nil
}

// amazonOwner is the IpOwnerId of auto-assigned public addresses.
const amazonOwner = "amazon"

// correlateElasticIPs reads the public address associated with each of the
// instance's network interfaces. No association means no elastic IP, and an
// address owned by Amazon is an auto-assigned one, not an elastic IP.
func (p *Plugin) correlateElasticIPs(_ context.Context, t *target, a *resource.Attachments) error {
	instance, err := t.instance()
	if err != nil {
		return err
	}
	if len(instance.NetworkInterfaces) == 0 {
		return malformed("read interface association", "instance %s has no network interfaces", t.id)
	}

	for _, ni := range instance.NetworkInterfaces {
		if ni.Association == nil || aws.ToString(ni.Association.PublicIp) == "" {
			continue
		}
		if aws.ToString(ni.Association.IpOwnerId) == amazonOwner {
			continue
		}
		a.ElasticIPs = append(a.ElasticIPs, resource.ElasticIP{PublicIP: aws.ToString(ni.Association.PublicIp)})
	}
	return nil
}

// correlateNetworkInterfaces lists the ENIs attached to the instance.
func (p *Plugin) correlateNetworkInterfaces(ctx context.Context, t *target, a *resource.Attachments) error {
	output, err := p.ec2Client.DescribeNetworkInterfaces(ctx, &ec2.DescribeNetworkInterfacesInput{
		Filters: []ec2types.Filter{{Name: aws.String("attachment.instance-id"), Values: []string{t.id}}},
	})
	if err != nil {
		return classify("describe network interfaces", err)
	}

	for _, ni := range output.NetworkInterfaces {
		a.NetworkInterfaces = append(a.NetworkInterfaces, resource.NetworkInterface{
			ID:          aws.ToString(ni.NetworkInterfaceId),
			Status:      string(ni.Status),
			PrivateIP:   aws.ToString(ni.PrivateIpAddress),
			SubnetID:    aws.ToString(ni.SubnetId),
			VpcID:       aws.ToString(ni.VpcId),
			MACAddress:  aws.ToString(ni.MacAddress),
			Description: aws.ToString(ni.Description),
		})
	}
	return nil
}

// correlateLoadBalancers finds load balancers with the instance as a target.
func (p *Plugin) correlateLoadBalancers(ctx context.Context, t *target, a *resource.Attachments) error {
	matched, err := t.index.loadBalancersFor(ctx, t.id)
	if err != nil {
		return err
	}
	a.LoadBalancers = append(a.LoadBalancers, matched...)
	return nil
}

// correlateKeyPairs looks up the key pair the instance was launched with.
func (p *Plugin) correlateKeyPairs(ctx context.Context, t *target, a *resource.Attachments) error {
	instance, err := t.instance()
	if err != nil {
		return err
	}
	keyName := aws.ToString(instance.KeyName)
	if keyName == "" {
		return nil
	}

	output, err := p.ec2Client.DescribeKeyPairs(ctx, &ec2.DescribeKeyPairsInput{KeyNames: []string{keyName}})
	if err != nil {
		return classify("describe key pairs", err)
	}
	if len(output.KeyPairs) == 0 {
		return nil
	}

	kp := output.KeyPairs[0]
	a.KeyPairs = append(a.KeyPairs, resource.KeyPair{
		Name:        aws.ToString(kp.KeyName),
		ID:          aws.ToString(kp.KeyPairId),
		Fingerprint: aws.ToString(kp.KeyFingerprint),
		Type:        string(kp.KeyType),
	})
	return nil
}

// correlateImages pairs the instance's AMI id with the image name. An image
// that has been deregistered keeps its id with an empty name.
func (p *Plugin) correlateImages(ctx context.Context, t *target, a *resource.Attachments) error {
	instance, err := t.instance()
	if err != nil {
		return err
	}
	imageID := aws.ToString(instance.ImageId)
	if imageID == "" {
		return nil
	}

	image := resource.Image{ID: imageID}
	output, err := p.ec2Client.DescribeImages(ctx, &ec2.DescribeImagesInput{ImageIds: []string{imageID}})
	if err != nil {
		err = classify("describe images", err)
		if !IsRecoverable(err) {
			return err
		}
		log.Debug().Ctx(ctx).Err(err).Str("image_id", imageID).Msg("image no longer described")
	} else if len(output.Images) > 0 {
		image.Name = aws.ToString(output.Images[0].Name)
	}

	a.Images = append(a.Images, image)
	return nil
}

// correlateBuckets finds buckets whose policy text mentions the instance id.
func (p *Plugin) correlateBuckets(ctx context.Context, t *target, a *resource.Attachments) error {
	matched, err := t.index.bucketsFor(ctx, t.id, t.observedAt)
	if err != nil {
		return err
	}
	a.Buckets = append(a.Buckets, matched...)
	return nil
}

// correlateAutoScalingGroups collects the groups the instance belongs to.
func (p *Plugin) correlateAutoScalingGroups(ctx context.Context, t *target, a *resource.Attachments) error {
	output, err := p.asgClient.DescribeAutoScalingInstances(ctx, &autoscaling.DescribeAutoScalingInstancesInput{
		InstanceIds: []string{t.id},
	})
	if err != nil {
		return classify("describe auto scaling instances", err)
	}

	for _, inst := range output.AutoScalingInstances {
		a.AutoScalingGroups = append(a.AutoScalingGroups, resource.AutoScalingGroup{
			Name: aws.ToString(inst.AutoScalingGroupName),
		})
	}
	return nil
}
