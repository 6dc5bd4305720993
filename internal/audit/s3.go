package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/golang/snappy"
	"github.com/google/uuid"
)

// ObjectPutter is the slice of the S3 client the archiver needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Config struct {
	Region       string
	Endpoint     string
	UsePathStyle bool
}

func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

type ArchiverConfig struct {
	Bucket        string
	Prefix        string
	BatchSize     int
	FlushInterval time.Duration
}

// Archiver buffers entries and writes them as snappy-framed JSON lines objects.
type Archiver struct {
	putter ObjectPutter
	cfg    ArchiverConfig
	now    func() time.Time

	mu     sync.Mutex
	buf    []Entry
	kick   chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
	closed bool
}

func NewArchiver(putter ObjectPutter, cfg ArchiverConfig) *Archiver {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Minute
	}
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")

	a := &Archiver{
		putter: putter,
		cfg:    cfg,
		now:    time.Now,
		kick:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	a.wg.Add(1)
	go a.loop()
	return a
}

func (a *Archiver) Record(entry Entry) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.buf = append(a.buf, entry)
	full := len(a.buf) >= a.cfg.BatchSize
	a.mu.Unlock()

	if full {
		select {
		case a.kick <- struct{}{}:
		default:
		}
	}
}

func (a *Archiver) loop() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.done:
			return
		case <-ticker.C:
		case <-a.kick:
		}
		if err := a.Flush(context.Background()); err != nil {
			log.Printf("[Audit] flush failed: %v", err)
		}
	}
}

// Flush writes everything buffered as one object. Entries are put back on failure.
func (a *Archiver) Flush(ctx context.Context) error {
	a.mu.Lock()
	batch := a.buf
	a.buf = nil
	a.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	body, err := encode(batch)
	if err != nil {
		return err
	}

	key := a.objectKey(a.now().UTC())
	_, err = a.putter.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/x-snappy-framed"),
	})
	if err != nil {
		a.mu.Lock()
		a.buf = append(batch, a.buf...)
		a.mu.Unlock()
		return fmt.Errorf("failed to upload audit batch: %w", err)
	}
	return nil
}

func (a *Archiver) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	close(a.done)
	a.wg.Wait()
	return a.Flush(ctx)
}

func (a *Archiver) objectKey(at time.Time) string {
	name := fmt.Sprintf("%04d/%02d/%02d/%s.jsonl.sz", at.Year(), at.Month(), at.Day(), uuid.NewString())
	if a.cfg.Prefix == "" {
		return name
	}
	return a.cfg.Prefix + "/" + name
}

func encode(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	w := snappy.NewBufferedWriter(&buf)
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return nil, fmt.Errorf("failed to encode audit entry: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress audit batch: %w", err)
	}
	return buf.Bytes(), nil
}
