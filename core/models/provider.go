package models

import "time"

// Provider represents a cloud provider
type Provider string

const (
	ProviderAWS    Provider = "aws"
	ProviderStatic Provider = "static"
)

// GPUInstance represents a GPU instance type and its hourly price
type GPUInstance struct {
	Provider     Provider
	InstanceType string // "p3.2xlarge", "g4dn.xlarge"
	Region       string
	PricePerHour float64
	SpotPrice    float64   // If available
	LastUpdated  time.Time // When pricing was fetched
}

// HourlyPrice returns the price that applies to the instance
func (g GPUInstance) HourlyPrice(spot bool) float64 {
	if spot && g.SpotPrice > 0 {
		return g.SpotPrice
	}
	return g.PricePerHour
}
