package main

import (
	"context"
	"fmt"
	"time"

	client "github.com/influxdata/influxdb1-client/v2"
)

// RecordMirror receives a copy of every record accepted by the stream.
type RecordMirror interface {
	Mirror(ctx context.Context, record Record) error
	Name() string
}

// InfluxMirror writes a record as a single point: one field per variable.
type InfluxMirror struct {
	c           client.Client
	database    string
	measurement string
	tags        map[string]string
}

func influxDBClient(config InfluxConfig, timeout time.Duration) (client.Client, error) {
	c, err := client.NewHTTPClient(client.HTTPConfig{
		Addr:     config.DatabaseURL,
		Username: config.DatabaseUser,
		Password: config.DatabasePassword,
		Timeout:  timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("influxdb client: %w", err)
	}
	return c, nil
}

func NewInfluxMirror(c client.Client, config InfluxConfig, deviceID string) *InfluxMirror {
	return &InfluxMirror{
		c:           c,
		database:    config.DatabaseDatabase,
		measurement: config.Measurement,
		tags:        map[string]string{"device": deviceID},
	}
}

func (m *InfluxMirror) Name() string { return "influxdb" }

func (m *InfluxMirror) Mirror(ctx context.Context, record Record) error {
	bp, err := influx_batch(m.database, m.measurement, m.tags, record)
	if err != nil {
		return err
	}

	// The v1 client has no context-aware write.
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.c.Write(bp)
}

/*
	Line protocol, eg: temperature,device=0123abcd temp1=21.5,temp2=22 1434055562

	key: measurement
	tags: device
	fields: one per variable
	timestamp in seconds
*/
func influx_batch(database, measurement string, tags map[string]string, record Record) (client.BatchPoints, error) {
	bp, err := client.NewBatchPoints(client.BatchPointsConfig{
		Database:  database,
		Precision: "s",
	})
	if err != nil {
		return nil, err
	}

	fields := make(map[string]interface{}, len(record.Values))
	for name, value := range record.Values {
		fields[name] = value
	}

	point, err := client.NewPoint(measurement, tags, fields, record.Time)
	if err != nil {
		return nil, fmt.Errorf("influx point: %w", err)
	}
	bp.AddPoint(point)
	return bp, nil
}

var _ RecordMirror = (*InfluxMirror)(nil)
