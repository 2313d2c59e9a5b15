package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"train-callbacks/core/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	pricingtypes "github.com/aws/aws-sdk-go-v2/service/pricing/types"
)

// The Pricing API is only served from a few regions
const pricingRegion = "us-east-1"

const defaultCacheTTL = 15 * time.Minute

type pricingAPI interface {
	GetProducts(ctx context.Context, params *pricing.GetProductsInput, optFns ...func(*pricing.Options)) (*pricing.GetProductsOutput, error)
}

type ec2API interface {
	DescribeSpotPriceHistory(ctx context.Context, params *ec2.DescribeSpotPriceHistoryInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSpotPriceHistoryOutput, error)
}

// Client is the AWS price source
type Client struct {
	ec2Client     ec2API
	pricingClient pricingAPI
	cacheTTL      time.Duration
	now           func() time.Time

	mu    sync.RWMutex
	cache map[string]models.GPUInstance
}

// NewClient creates a new AWS client
func NewClient(ctx context.Context, region string) (*Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newClient(
		pricing.NewFromConfig(cfg, func(o *pricing.Options) { o.Region = pricingRegion }),
		ec2.NewFromConfig(cfg),
	), nil
}

func newClient(pricingClient pricingAPI, ec2Client ec2API) *Client {
	return &Client{
		ec2Client:     ec2Client,
		pricingClient: pricingClient,
		cacheTTL:      defaultCacheTTL,
		now:           time.Now,
		cache:         make(map[string]models.GPUInstance),
	}
}

// GetInstancePrice returns on-demand and spot pricing for an instance type.
// Results are cached for 15 minutes.
func (c *Client) GetInstancePrice(ctx context.Context, instanceType, region string) (models.GPUInstance, error) {
	key := region + "/" + instanceType

	c.mu.RLock()
	cached, ok := c.cache[key]
	c.mu.RUnlock()
	if ok && c.now().Sub(cached.LastUpdated) < c.cacheTTL {
		return cached, nil
	}

	onDemand, err := c.FetchOnDemandPrice(ctx, instanceType, region)
	if err != nil {
		return models.GPUInstance{}, err
	}

	spot, err := c.FetchSpotPrice(ctx, instanceType, region)
	if err != nil {
		// Spot pricing is optional, on-demand still applies
		log.Printf("WARNING: spot pricing for %s in %s unavailable: %v", instanceType, region, err)
	}

	instance := models.GPUInstance{
		Provider:     models.ProviderAWS,
		InstanceType: instanceType,
		Region:       region,
		PricePerHour: onDemand,
		SpotPrice:    spot,
		LastUpdated:  c.now(),
	}

	c.mu.Lock()
	c.cache[key] = instance
	c.mu.Unlock()

	return instance, nil
}

// FetchOnDemandPrice fetches the Linux on-demand hourly price from the Pricing API
func (c *Client) FetchOnDemandPrice(ctx context.Context, instanceType, region string) (float64, error) {
	out, err := c.pricingClient.GetProducts(ctx, &pricing.GetProductsInput{
		ServiceCode: aws.String("AmazonEC2"),
		Filters: []pricingtypes.Filter{
			termMatch("instanceType", instanceType),
			termMatch("regionCode", region),
			termMatch("operatingSystem", "Linux"),
			termMatch("tenancy", "Shared"),
			termMatch("preInstalledSw", "NA"),
			termMatch("capacitystatus", "Used"),
		},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get products for %s: %w", instanceType, err)
	}

	for _, item := range out.PriceList {
		price, err := parseOnDemandPrice(item)
		if err != nil {
			return 0, err
		}
		if price > 0 {
			return price, nil
		}
	}

	if price, ok := listPrices[instanceType]; ok {
		log.Printf("WARNING: no pricing products for %s in %s, using list price", instanceType, region)
		return price, nil
	}
	return 0, fmt.Errorf("no on-demand price for %s in %s", instanceType, region)
}

// FetchSpotPrice returns the mean of the latest spot price per availability zone
func (c *Client) FetchSpotPrice(ctx context.Context, instanceType, region string) (float64, error) {
	out, err := c.ec2Client.DescribeSpotPriceHistory(ctx, &ec2.DescribeSpotPriceHistoryInput{
		InstanceTypes:       []ec2types.InstanceType{ec2types.InstanceType(instanceType)},
		ProductDescriptions: []string{"Linux/UNIX"},
		StartTime:           aws.Time(c.now().Add(-time.Hour)),
	}, func(o *ec2.Options) { o.Region = region })
	if err != nil {
		return 0, fmt.Errorf("failed to describe spot price history: %w", err)
	}

	// History is newest first, keep one price per zone
	latest := make(map[string]float64)
	for _, sp := range out.SpotPriceHistory {
		zone := aws.ToString(sp.AvailabilityZone)
		if _, seen := latest[zone]; seen {
			continue
		}
		price, err := strconv.ParseFloat(aws.ToString(sp.SpotPrice), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid spot price %q: %w", aws.ToString(sp.SpotPrice), err)
		}
		latest[zone] = price
	}
	if len(latest) == 0 {
		return 0, fmt.Errorf("no spot price history for %s", instanceType)
	}

	var sum float64
	for _, price := range latest {
		sum += price
	}
	return sum / float64(len(latest)), nil
}

func termMatch(field, value string) pricingtypes.Filter {
	return pricingtypes.Filter{
		Field: aws.String(field),
		Type:  pricingtypes.FilterTypeTermMatch,
		Value: aws.String(value),
	}
}

// priceListItem is the subset of a Pricing API product document we read
type priceListItem struct {
	Terms struct {
		OnDemand map[string]struct {
			PriceDimensions map[string]struct {
				Unit         string            `json:"unit"`
				PricePerUnit map[string]string `json:"pricePerUnit"`
			} `json:"priceDimensions"`
		} `json:"OnDemand"`
	} `json:"terms"`
}

func parseOnDemandPrice(doc string) (float64, error) {
	var item priceListItem
	if err := json.Unmarshal([]byte(doc), &item); err != nil {
		return 0, fmt.Errorf("failed to parse price list: %w", err)
	}

	for _, term := range item.Terms.OnDemand {
		for _, dim := range term.PriceDimensions {
			if dim.Unit != "Hrs" {
				continue
			}
			usd, ok := dim.PricePerUnit["USD"]
			if !ok {
				continue
			}
			price, err := strconv.ParseFloat(usd, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid USD price %q: %w", usd, err)
			}
			return price, nil
		}
	}
	return 0, nil
}

// listPrices are us-east-1 on-demand list prices for common GPU instances
var listPrices = map[string]float64{
	"p3.2xlarge":   3.06,
	"p3.8xlarge":   12.24,
	"p3.16xlarge":  24.48,
	"p4d.24xlarge": 32.77,
	"g4dn.xlarge":  0.526,
}
