package aws

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	asgtypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// fakeAccount is an in-memory account implementing every client interface.
// Errors can be injected per operation name; calls are counted the same way.
type fakeAccount struct {
	instances     []ec2types.Instance
	volumes       map[string][]ec2types.Volume
	enis          map[string][]ec2types.NetworkInterface
	keyPairs      map[string]ec2types.KeyPairInfo
	images        map[string]ec2types.Image
	loadBalancers []elbtypes.LoadBalancer
	targetGroups  map[string][]elbtypes.TargetGroup
	targetHealth  map[string][]elbtypes.TargetHealthDescription
	buckets       []string
	bucketRegions map[string]string
	policies      map[string]string
	asgs          map[string][]string

	fail  map[string]error
	calls map[string]int
}

func newFakeAccount() *fakeAccount {
	return &fakeAccount{
		volumes:       make(map[string][]ec2types.Volume),
		enis:          make(map[string][]ec2types.NetworkInterface),
		keyPairs:      make(map[string]ec2types.KeyPairInfo),
		images:        make(map[string]ec2types.Image),
		targetGroups:  make(map[string][]elbtypes.TargetGroup),
		targetHealth:  make(map[string][]elbtypes.TargetHealthDescription),
		bucketRegions: make(map[string]string),
		policies:      make(map[string]string),
		asgs:          make(map[string][]string),
		fail:          make(map[string]error),
		calls:         make(map[string]int),
	}
}

func (f *fakeAccount) clients() Clients {
	return Clients{EC2: f, ELB: f, S3: f, AutoScaling: f}
}

func (f *fakeAccount) plugin(reuse bool) *Plugin {
	return NewWithClients(Config{
		Region:     fakeRegion,
		ReuseIndex: reuse,
		Now:        func() time.Time { return fixedNow },
	}, f.clients())
}

func (f *fakeAccount) call(op string) error {
	f.calls[op]++
	return f.fail[op]
}

const fakeRegion = "us-east-1"

var fixedNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func apiError(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code}
}

func filterValue(filters []ec2types.Filter, name string) string {
	for _, f := range filters {
		if aws.ToString(f.Name) == name && len(f.Values) > 0 {
			return f.Values[0]
		}
	}
	return ""
}

func (f *fakeAccount) DescribeInstances(_ context.Context, params *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	op := "DescribeInstances"
	if len(params.InstanceIds) > 0 {
		op = "DescribeInstance"
	}
	if err := f.call(op); err != nil {
		return nil, err
	}

	var matched []ec2types.Instance
	for _, inst := range f.instances {
		if len(params.InstanceIds) == 0 || params.InstanceIds[0] == aws.ToString(inst.InstanceId) {
			matched = append(matched, inst)
		}
	}
	if len(params.InstanceIds) > 0 && len(matched) == 0 {
		return nil, apiError("InvalidInstanceID.NotFound")
	}
	return &ec2.DescribeInstancesOutput{Reservations: []ec2types.Reservation{{Instances: matched}}}, nil
}

func (f *fakeAccount) DescribeVolumes(_ context.Context, params *ec2.DescribeVolumesInput, _ ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
	if err := f.call("DescribeVolumes"); err != nil {
		return nil, err
	}
	id := filterValue(params.Filters, "attachment.instance-id")
	return &ec2.DescribeVolumesOutput{Volumes: f.volumes[id]}, nil
}

func (f *fakeAccount) DescribeNetworkInterfaces(_ context.Context, params *ec2.DescribeNetworkInterfacesInput, _ ...func(*ec2.Options)) (*ec2.DescribeNetworkInterfacesOutput, error) {
	if err := f.call("DescribeNetworkInterfaces"); err != nil {
		return nil, err
	}
	id := filterValue(params.Filters, "attachment.instance-id")
	return &ec2.DescribeNetworkInterfacesOutput{NetworkInterfaces: f.enis[id]}, nil
}

func (f *fakeAccount) DescribeKeyPairs(_ context.Context, params *ec2.DescribeKeyPairsInput, _ ...func(*ec2.Options)) (*ec2.DescribeKeyPairsOutput, error) {
	if err := f.call("DescribeKeyPairs"); err != nil {
		return nil, err
	}
	kp, ok := f.keyPairs[params.KeyNames[0]]
	if !ok {
		return nil, apiError("InvalidKeyPair.NotFound")
	}
	return &ec2.DescribeKeyPairsOutput{KeyPairs: []ec2types.KeyPairInfo{kp}}, nil
}

func (f *fakeAccount) DescribeImages(_ context.Context, params *ec2.DescribeImagesInput, _ ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error) {
	if err := f.call("DescribeImages"); err != nil {
		return nil, err
	}
	img, ok := f.images[params.ImageIds[0]]
	if !ok {
		return nil, apiError("InvalidAMIID.NotFound")
	}
	return &ec2.DescribeImagesOutput{Images: []ec2types.Image{img}}, nil
}

func (f *fakeAccount) DescribeLoadBalancers(_ context.Context, _ *elbv2.DescribeLoadBalancersInput, _ ...func(*elbv2.Options)) (*elbv2.DescribeLoadBalancersOutput, error) {
	if err := f.call("DescribeLoadBalancers"); err != nil {
		return nil, err
	}
	return &elbv2.DescribeLoadBalancersOutput{LoadBalancers: f.loadBalancers}, nil
}

func (f *fakeAccount) DescribeTargetGroups(_ context.Context, params *elbv2.DescribeTargetGroupsInput, _ ...func(*elbv2.Options)) (*elbv2.DescribeTargetGroupsOutput, error) {
	if err := f.call("DescribeTargetGroups"); err != nil {
		return nil, err
	}
	return &elbv2.DescribeTargetGroupsOutput{TargetGroups: f.targetGroups[aws.ToString(params.LoadBalancerArn)]}, nil
}

func (f *fakeAccount) DescribeTargetHealth(_ context.Context, params *elbv2.DescribeTargetHealthInput, _ ...func(*elbv2.Options)) (*elbv2.DescribeTargetHealthOutput, error) {
	if err := f.call("DescribeTargetHealth"); err != nil {
		return nil, err
	}
	descs, ok := f.targetHealth[aws.ToString(params.TargetGroupArn)]
	if !ok {
		return nil, apiError("TargetGroupNotFound")
	}
	return &elbv2.DescribeTargetHealthOutput{TargetHealthDescriptions: descs}, nil
}

func (f *fakeAccount) ListBuckets(_ context.Context, _ *s3.ListBucketsInput, _ ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	if err := f.call("ListBuckets"); err != nil {
		return nil, err
	}
	out := &s3.ListBucketsOutput{}
	for _, name := range f.buckets {
		b := s3types.Bucket{Name: aws.String(name)}
		if region := f.bucketRegions[name]; region != "" {
			b.BucketRegion = aws.String(region)
		}
		out.Buckets = append(out.Buckets, b)
	}
	return out, nil
}

// GetBucketPolicy answers only when called in the bucket's region, the way
// S3 answers PermanentRedirect to a client pointed at another region.
func (f *fakeAccount) GetBucketPolicy(_ context.Context, params *s3.GetBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.GetBucketPolicyOutput, error) {
	if err := f.call("GetBucketPolicy"); err != nil {
		return nil, err
	}
	opts := s3.Options{Region: fakeRegion}
	for _, fn := range optFns {
		fn(&opts)
	}
	if region := f.bucketRegions[aws.ToString(params.Bucket)]; region != "" && region != opts.Region {
		return nil, apiError("PermanentRedirect")
	}
	policy, ok := f.policies[aws.ToString(params.Bucket)]
	if !ok {
		return nil, apiError("NoSuchBucketPolicy")
	}
	return &s3.GetBucketPolicyOutput{Policy: aws.String(policy)}, nil
}

func (f *fakeAccount) DescribeAutoScalingInstances(_ context.Context, params *autoscaling.DescribeAutoScalingInstancesInput, _ ...func(*autoscaling.Options)) (*autoscaling.DescribeAutoScalingInstancesOutput, error) {
	if err := f.call("DescribeAutoScalingInstances"); err != nil {
		return nil, err
	}
	out := &autoscaling.DescribeAutoScalingInstancesOutput{}
	for _, name := range f.asgs[params.InstanceIds[0]] {
		out.AutoScalingInstances = append(out.AutoScalingInstances, asgtypes.AutoScalingInstanceDetails{
			InstanceId:           aws.String(params.InstanceIds[0]),
			AutoScalingGroupName: aws.String(name),
		})
	}
	return out, nil
}

// addALB registers an application load balancer whose single target group
// targets the given instance ids.
func (f *fakeAccount) addALB(name string, targets ...string) {
	f.addLoadBalancer(name, elbtypes.LoadBalancerTypeEnumApplication, targets...)
}

func (f *fakeAccount) addLoadBalancer(name string, typ elbtypes.LoadBalancerTypeEnum, targets ...string) {
	lbArn := "arn:aws:elasticloadbalancing:us-east-1:123456789012:loadbalancer/app/" + name + "/1"
	tgArn := "arn:aws:elasticloadbalancing:us-east-1:123456789012:targetgroup/" + name + "-tg/1"
	f.loadBalancers = append(f.loadBalancers, elbtypes.LoadBalancer{
		LoadBalancerName: aws.String(name),
		LoadBalancerArn:  aws.String(lbArn),
		Type:             typ,
	})
	f.targetGroups[lbArn] = []elbtypes.TargetGroup{{TargetGroupArn: aws.String(tgArn)}}

	var descs []elbtypes.TargetHealthDescription
	for _, id := range targets {
		descs = append(descs, elbtypes.TargetHealthDescription{
			Target:       &elbtypes.TargetDescription{Id: aws.String(id), Port: aws.Int32(80)},
			TargetHealth: &elbtypes.TargetHealth{State: elbtypes.TargetHealthStateEnumHealthy},
		})
	}
	f.targetHealth[tgArn] = descs
}

// scenarioAccount is i-abc123 with key pair my-key, image ami-1 "Ubuntu",
// no public address association, one volume, one security group, one ENI,
// an ALB targeting it, a policy mention in logs-bucket only, and ASG web-asg.
func scenarioAccount() *fakeAccount {
	f := newFakeAccount()
	f.instances = []ec2types.Instance{{
		InstanceId:       aws.String("i-abc123"),
		InstanceType:     ec2types.InstanceTypeT3Micro,
		State:            &ec2types.InstanceState{Name: ec2types.InstanceStateNameRunning},
		PrivateIpAddress: aws.String("10.0.0.5"),
		KeyName:          aws.String("my-key"),
		ImageId:          aws.String("ami-1"),
		SecurityGroups:   []ec2types.GroupIdentifier{{GroupId: aws.String("sg-1"), GroupName: aws.String("web")}},
		NetworkInterfaces: []ec2types.InstanceNetworkInterface{
			{NetworkInterfaceId: aws.String("eni-1")},
		},
	}}
	f.volumes["i-abc123"] = []ec2types.Volume{{
		VolumeId: aws.String("vol-1"),
		Size:     aws.Int32(8),
		Attachments: []ec2types.VolumeAttachment{{
			InstanceId: aws.String("i-abc123"),
			Device:     aws.String("/dev/xvda"),
			State:      ec2types.VolumeAttachmentStateAttached,
		}},
	}}
	f.enis["i-abc123"] = []ec2types.NetworkInterface{{
		NetworkInterfaceId: aws.String("eni-1"),
		Status:             ec2types.NetworkInterfaceStatusInUse,
		PrivateIpAddress:   aws.String("10.0.0.5"),
		SubnetId:           aws.String("subnet-1"),
		VpcId:              aws.String("vpc-1"),
		MacAddress:         aws.String("02:00:00:00:00:01"),
	}}
	f.keyPairs["my-key"] = ec2types.KeyPairInfo{
		KeyName:        aws.String("my-key"),
		KeyPairId:      aws.String("key-0123"),
		KeyFingerprint: aws.String("ab:cd"),
		KeyType:        ec2types.KeyTypeEd25519,
	}
	f.images["ami-1"] = ec2types.Image{ImageId: aws.String("ami-1"), Name: aws.String("Ubuntu")}
	f.addALB("web-alb", "i-abc123", "i-other")
	f.addALB("api-alb", "i-other")
	f.buckets = []string{"assets-bucket", "logs-bucket"}
	f.policies["logs-bucket"] = `{"Statement":[{"Condition":{"StringEquals":{"aws:SourceInstance":"i-abc123"}}}]}`
	f.policies["assets-bucket"] = `{"Statement":[{"Principal":"*","Action":"s3:GetObject"}]}`
	f.asgs["i-abc123"] = []string{"web-asg"}
	return f
}
