// Package paramstore reads configuration and secrets from AWS SSM Parameter
// Store. Values are always requested with decryption.
package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// SSM rejects GetParameters calls naming more than ten parameters.
const maxBatch = 10

// ssmAPI is the subset of *ssm.Client used here.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	GetParameters(ctx context.Context, in *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
}

type Client struct {
	api ssmAPI
}

func New(api ssmAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api}, nil
}

// GetParameter returns the value of one parameter. A missing parameter is
// an error.
func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}

	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("paramstore: parameter %q missing value", name)
	}
	return *out.Parameter.Value, nil
}

// GetParameters fetches several parameters in as few calls as SSM allows.
// Names SSM does not know are absent from the result rather than an error,
// so callers can apply their own defaults.
func (c *Client) GetParameters(ctx context.Context, names []string) (map[string]string, error) {
	wanted := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			return nil, errors.New("paramstore: name is required")
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		wanted = append(wanted, n)
	}

	values := make(map[string]string, len(wanted))
	for start := 0; start < len(wanted); start += maxBatch {
		end := min(start+maxBatch, len(wanted))
		out, err := c.api.GetParameters(ctx, &ssm.GetParametersInput{
			Names:          wanted[start:end],
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("paramstore: get parameters %s: %w", strings.Join(wanted[start:end], ","), err)
		}
		if out == nil {
			continue
		}
		for _, p := range out.Parameters {
			if p.Name == nil || p.Value == nil {
				continue
			}
			values[*p.Name] = *p.Value
		}
	}
	return values, nil
}
