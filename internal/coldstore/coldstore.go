// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package coldstore exports rollup rows to S3-compatible object
// storage one day at a time, well before the retention policies
// configured in internal/store/migrations drop them, so long-horizon trend analysis
// stays possible without growing the hot hypertables.
package coldstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/chirpwatch/lorawan-analyzer/pkg/log"
)

// Config describes the target bucket and how to reach it. Disabled is
// the default: cold-export only runs when a caller explicitly enables
// it in its own scheduling config.
type Config struct {
	Endpoint     string
	Bucket       string
	Region       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
	Prefix       string // key prefix under which rollup exports are stored
}

// HourlyRow is one exported packets_hourly record.
type HourlyRow struct {
	Bucket        time.Time `json:"bucket"`
	GatewayID     string    `json:"gateway_id"`
	Operator      *string   `json:"operator,omitempty"`
	PacketType    string    `json:"packet_type"`
	PacketCount   int64     `json:"packet_count"`
	AirtimeUsSum  int64     `json:"airtime_us_sum"`
	UniqueDevices int64     `json:"unique_devices"`
}

// ChannelSFRow is one exported packets_channel_sf_hourly record.
type ChannelSFRow struct {
	Bucket       time.Time `json:"bucket"`
	GatewayID    string    `json:"gateway_id"`
	Frequency    int64     `json:"frequency"`
	SF           int       `json:"sf"`
	PacketCount  int64     `json:"packet_count"`
	AirtimeUsSum int64     `json:"airtime_us_sum"`
}

// Exporter writes rollup rows to object storage.
type Exporter struct {
	client *s3.Client
	cfg    Config
}

// New builds an Exporter from cfg. Credentials resolve to static keys
// when given, falling back to the default provider chain (env vars,
// instance profile) otherwise.
func New(ctx context.Context, cfg Config) (*Exporter, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("coldstore: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &Exporter{client: client, cfg: cfg}, nil
}

// ExportHourly uploads a batch of packets_hourly rows as one
// newline-delimited-JSON object, keyed by the bucket's UTC hour so
// repeated exports for the same hour overwrite rather than duplicate.
func (e *Exporter) ExportHourly(ctx context.Context, rows []HourlyRow) error {
	if len(rows) == 0 {
		return nil
	}
	body, err := encodeNDJSON(rows)
	if err != nil {
		return fmt.Errorf("coldstore: encode hourly rows: %w", err)
	}
	key := fmt.Sprintf("%spackets_hourly/%s.ndjson", e.cfg.Prefix, rows[0].Bucket.UTC().Format("2006-01-02T15"))
	return e.putObject(ctx, key, body)
}

// ExportChannelSF uploads a batch of packets_channel_sf_hourly rows.
func (e *Exporter) ExportChannelSF(ctx context.Context, rows []ChannelSFRow) error {
	if len(rows) == 0 {
		return nil
	}
	body, err := encodeNDJSON(rows)
	if err != nil {
		return fmt.Errorf("coldstore: encode channel/sf rows: %w", err)
	}
	key := fmt.Sprintf("%spackets_channel_sf_hourly/%s.ndjson", e.cfg.Prefix, rows[0].Bucket.UTC().Format("2006-01-02T15"))
	return e.putObject(ctx, key, body)
}

func (e *Exporter) putObject(ctx context.Context, key string, body []byte) error {
	_, err := e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(e.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("coldstore: put %q: %w", key, err)
	}
	log.Infof("coldstore: exported %s (%d bytes)", key, len(body))
	return nil
}

func encodeNDJSON[T any](rows []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
