package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Reading is one raw value fetched from a device variable.
type Reading struct {
	Name     string
	RawValue float64
}

// DeviceSource reads a single named variable from a device.
type DeviceSource interface {
	GetVariable(ctx context.Context, deviceID, name, accessToken string) (Reading, error)
}

// ParticleClient talks to the Particle Cloud variable endpoint.
type ParticleClient struct {
	baseURL string
	http    *http.Client
}

func NewParticleClient(baseURL string, httpClient *http.Client) *ParticleClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ParticleClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

type particleVariable struct {
	Name   string          `json:"name"`
	Result json.RawMessage `json:"result"`
}

type particleError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Info             string `json:"info"`
}

func (p *ParticleClient) GetVariable(ctx context.Context, deviceID, name, accessToken string) (Reading, error) {
	endpoint := fmt.Sprintf("%s/v1/devices/%s/%s", p.baseURL, url.PathEscape(deviceID), url.PathEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Reading{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return Reading{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Reading{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Reading{}, particle_status_error(resp.Status, data)
	}

	var v particleVariable
	if err := json.Unmarshal(data, &v); err != nil {
		return Reading{}, fmt.Errorf("decode variable %s: %w", name, err)
	}

	raw, err := parse_variable_result(v.Result)
	if err != nil {
		return Reading{}, fmt.Errorf("variable %s: %w", name, err)
	}

	// Keyed by the requested name so the record always matches the configured variables.
	return Reading{Name: name, RawValue: raw}, nil
}

func particle_status_error(status string, body []byte) error {
	var perr particleError
	if err := json.Unmarshal(body, &perr); err == nil && perr.Error != "" {
		msg := perr.Error
		if perr.ErrorDescription != "" {
			msg += ": " + perr.ErrorDescription
		} else if perr.Info != "" {
			msg += ": " + perr.Info
		}
		return fmt.Errorf("particle api %s: %s", status, msg)
	}
	return fmt.Errorf("particle api %s", status)
}

var _ DeviceSource = (*ParticleClient)(nil)
