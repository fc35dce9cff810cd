package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/yairfalse/tether/pkg/resource"
)

// ListInstances returns every instance from a single DescribeInstances page,
// flattened across reservations in the order AWS returned them.
func (p *Plugin) ListInstances(ctx context.Context) ([]resource.Instance, error) {
	output, err := p.ec2Client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{})
	if err != nil {
		return nil, classify("describe instances", err)
	}

	var instances []resource.Instance
	for _, reservation := range output.Reservations {
		for _, instance := range reservation.Instances {
			instances = append(instances, convertInstance(instance))
		}
	}
	return instances, nil
}

func convertInstance(instance ec2types.Instance) resource.Instance {
	state := ""
	if instance.State != nil {
		state = string(instance.State.Name)
	}
	return resource.Instance{
		ID:        aws.ToString(instance.InstanceId),
		Type:      string(instance.InstanceType),
		State:     state,
		PublicIP:  resource.OrNotAvailable(aws.ToString(instance.PublicIpAddress)),
		PrivateIP: resource.OrNotAvailable(aws.ToString(instance.PrivateIpAddress)),
	}
}
