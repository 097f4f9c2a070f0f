package main

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const version = "0.2"

// Record is the rescaled set of readings submitted as one row.
type Record struct {
	Time   time.Time
	Values map[string]float64
}

// collaborators are built once in main and handed to run.
type collaborators struct {
	source  DeviceSource
	sink    LogSink
	mirrors []RecordMirror
	metrics *runMetrics
	logger  *zap.Logger
	now     func() time.Time
}

type readResult struct {
	reading Reading
	err     error
}

/*
	One run:
	1. Open the stream, then hand it the private key
	2. Read every variable at once and wait for all of them
	3. Rescale into one record
	4. Submit to the stream, then to any mirrors
*/
func run(ctx context.Context, cfg *Config, deps collaborators) (err error) {
	log := deps.logger
	if deps.now == nil {
		deps.now = time.Now
	}

	start := deps.now()
	defer func() { deps.metrics.finish(start, err) }()

	stream, err := deps.sink.Connect(ctx, cfg.StreamIRI)
	if err != nil {
		err = &ConnectionError{IRI: cfg.StreamIRI, Err: err}
		log.Error("Could not open stream", zap.Error(err))
		return err
	}
	stream.PrivateKey = cfg.StreamPrivateKey
	log.Debug("stream opened",
		zap.String("title", stream.Title),
		zap.String("public_key", stream.PublicKey),
		zap.String("input", stream.InputURL),
	)

	results := read_all(ctx, deps.source, cfg)

	record, err := build_record(results, cfg, deps.now())
	for _, r := range results {
		if r.err != nil {
			deps.metrics.readFailed()
			continue
		}
		value := record.Values[r.reading.Name]
		deps.metrics.readSucceeded(r.reading.Name, value)
		log.Info("reading",
			zap.String("variable", r.reading.Name),
			zap.Float64("raw", r.reading.RawValue),
			zap.Float64("value", value),
		)
	}
	if err != nil {
		log.Error("Could not read device variables", zap.Error(err))
		return err
	}

	if err = deps.sink.Add(ctx, stream, record); err != nil {
		err = &SubmissionError{Sink: "phant", Err: err}
		log.Error("Could not submit record", zap.Error(err))
		return err
	}

	for _, m := range deps.mirrors {
		if err = m.Mirror(ctx, record); err != nil {
			err = &SubmissionError{Sink: m.Name(), Err: err}
			log.Error("Could not mirror record", zap.Error(err))
			return err
		}
	}

	log.Info("Done.", zap.Int("variables", len(record.Values)))
	return nil
}

// read_all fans out one read per variable. Each goroutine owns its slot, so
// nothing is shared until Wait returns. A failed read does not cancel the rest.
func read_all(ctx context.Context, source DeviceSource, cfg *Config) []readResult {
	results := make([]readResult, len(cfg.Variables))

	var g errgroup.Group
	if cfg.MaxConcurrentReads > 0 {
		g.SetLimit(cfg.MaxConcurrentReads)
	}

	for i, name := range cfg.Variables {
		g.Go(func() error {
			r, err := source.GetVariable(ctx, cfg.DeviceID, name, cfg.DeviceAccessToken)
			if err == nil {
				r.Name = name
			}
			results[i] = readResult{reading: r, err: err}
			return err
		})
	}

	// Every failure is collected from results, not just the first.
	_ = g.Wait()
	return results
}

func build_record(results []readResult, cfg *Config, at time.Time) (Record, error) {
	record := Record{
		Time:   at,
		Values: make(map[string]float64, len(results)),
	}

	failed := map[string]error{}
	for i, r := range results {
		if r.err != nil {
			failed[cfg.Variables[i]] = r.err
			continue
		}
		record.Values[r.reading.Name] = rescale(r.reading.RawValue, cfg.Decode, cfg.ScaleFactor)
	}

	if len(failed) > 0 {
		return record, &ReadError{Failed: failed}
	}
	return record, nil
}
