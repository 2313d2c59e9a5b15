package aws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"train-callbacks/core/models"
)

const p3PriceList = `{
  "product": {"attributes": {"instanceType": "p3.2xlarge"}},
  "terms": {
    "OnDemand": {
      "SKU.JRTCKXETXF": {
        "priceDimensions": {
          "SKU.JRTCKXETXF.6YS6EN2CT7": {
            "unit": "Hrs",
            "pricePerUnit": {"USD": "3.0600000000"}
          }
        }
      }
    }
  }
}`

type fakePricing struct {
	calls     int
	priceList []string
	err       error
	lastInput *pricing.GetProductsInput
}

func (f *fakePricing) GetProducts(ctx context.Context, params *pricing.GetProductsInput, optFns ...func(*pricing.Options)) (*pricing.GetProductsOutput, error) {
	f.calls++
	f.lastInput = params
	if f.err != nil {
		return nil, f.err
	}
	return &pricing.GetProductsOutput{PriceList: f.priceList}, nil
}

type fakeEC2 struct {
	history []ec2types.SpotPrice
	err     error
}

func (f *fakeEC2) DescribeSpotPriceHistory(ctx context.Context, params *ec2.DescribeSpotPriceHistoryInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSpotPriceHistoryOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ec2.DescribeSpotPriceHistoryOutput{SpotPriceHistory: f.history}, nil
}

func spot(zone, price string) ec2types.SpotPrice {
	return ec2types.SpotPrice{
		AvailabilityZone: aws.String(zone),
		SpotPrice:        aws.String(price),
		InstanceType:     ec2types.InstanceType("p3.2xlarge"),
	}
}

func TestGetInstancePrice(t *testing.T) {
	pc := &fakePricing{priceList: []string{p3PriceList}}
	ec := &fakeEC2{history: []ec2types.SpotPrice{
		spot("us-east-1a", "1.00"),
		spot("us-east-1b", "0.80"),
		spot("us-east-1a", "5.00"), // older sample for 1a
	}}
	c := newClient(pc, ec)

	instance, err := c.GetInstancePrice(context.Background(), "p3.2xlarge", "us-east-1")
	require.NoError(t, err)

	assert.Equal(t, models.ProviderAWS, instance.Provider)
	assert.Equal(t, "us-east-1", instance.Region)
	assert.InDelta(t, 3.06, instance.PricePerHour, 1e-9)
	assert.InDelta(t, 0.90, instance.SpotPrice, 1e-9)
	assert.Equal(t, "AmazonEC2", aws.ToString(pc.lastInput.ServiceCode))
	assert.Len(t, pc.lastInput.Filters, 6)
}

func TestGetInstancePrice_Cached(t *testing.T) {
	pc := &fakePricing{priceList: []string{p3PriceList}}
	c := newClient(pc, &fakeEC2{history: []ec2types.SpotPrice{spot("a", "1")}})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		_, err := c.GetInstancePrice(context.Background(), "p3.2xlarge", "us-east-1")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, pc.calls)

	now = now.Add(16 * time.Minute)
	_, err := c.GetInstancePrice(context.Background(), "p3.2xlarge", "us-east-1")
	require.NoError(t, err)
	assert.Equal(t, 2, pc.calls)
}

func TestGetInstancePrice_SpotUnavailable(t *testing.T) {
	c := newClient(&fakePricing{priceList: []string{p3PriceList}}, &fakeEC2{err: errors.New("denied")})

	instance, err := c.GetInstancePrice(context.Background(), "p3.2xlarge", "us-east-1")
	require.NoError(t, err)
	assert.Zero(t, instance.SpotPrice)
	assert.InDelta(t, 3.06, instance.HourlyPrice(true), 1e-9)
}

func TestFetchOnDemandPrice_FallsBackToListPrice(t *testing.T) {
	c := newClient(&fakePricing{}, &fakeEC2{})

	price, err := c.FetchOnDemandPrice(context.Background(), "g4dn.xlarge", "eu-west-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.526, price, 1e-9)

	_, err = c.FetchOnDemandPrice(context.Background(), "x9.huge", "eu-west-1")
	assert.Error(t, err)
}

func TestFetchOnDemandPrice_APIError(t *testing.T) {
	c := newClient(&fakePricing{err: errors.New("throttled")}, &fakeEC2{})

	_, err := c.FetchOnDemandPrice(context.Background(), "p3.2xlarge", "us-east-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestParseOnDemandPrice_Malformed(t *testing.T) {
	_, err := parseOnDemandPrice("{not json")
	assert.Error(t, err)

	price, err := parseOnDemandPrice(`{"terms":{"OnDemand":{}}}`)
	require.NoError(t, err)
	assert.Zero(t, price)
}
