package cipherstorage

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/illarion/cipherstore/internal/crypto"
	"github.com/illarion/cipherstore/internal/keystore"
)

const (
	// BackendName identifies envelopes produced by KeystoreAESCBC
	BackendName = "KeystoreAESCBC"

	// MinPlatformVersion is the keystore API level that first supports
	// generating AES/CBC keys inside the keystore
	MinPlatformVersion = 23

	instrumentationName = "github.com/illarion/cipherstore/internal/cipherstorage"
)

// CipherStorage encrypts string values into self-contained envelopes
type CipherStorage interface {
	Encrypt(ctx context.Context, service, itemKey, value string) (*EncryptionResult, error)
	Decrypt(ctx context.Context, service, itemKey string, ciphertext []byte) (*DecryptionResult, error)
	Name() string
	MinPlatformVersion() int
}

var _ CipherStorage = (*KeystoreAESCBC)(nil)

// KeystoreAESCBC encrypts values with AES-256-CBC under a per-service key
// held in a KeyStore. It is safe for concurrent use.
type KeystoreAESCBC struct {
	prov   *Provisioner
	log    *zap.Logger
	tracer trace.Tracer
	ops    metric.Int64Counter
}

type options struct {
	log    *zap.Logger
	tracer trace.TracerProvider
	meter  metric.MeterProvider
}

// Option configures a KeystoreAESCBC
type Option func(*options)

// WithLogger sets the logger. Values and key material are never logged.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracer = tp }
}

// WithMeterProvider overrides the global OpenTelemetry meter provider
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meter = mp }
}

// New returns a backend provisioning keys from ks
func New(ks keystore.KeyStore, opts ...Option) *KeystoreAESCBC {
	o := options{
		log:    zap.NewNop(),
		tracer: otel.GetTracerProvider(),
		meter:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	log := o.log.Named("cipherstorage").With(zap.String("backend", BackendName))

	ops, err := o.meter.Meter(instrumentationName).Int64Counter(
		"cipherstore.operations",
		metric.WithDescription("Encrypt and decrypt calls by outcome"),
	)
	if err != nil {
		log.Warn("failed to create operations counter", zap.Error(err))
		ops, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("cipherstore.operations")
	}

	return &KeystoreAESCBC{
		prov:   NewProvisioner(ks, log),
		log:    log,
		tracer: o.tracer.Tracer(instrumentationName),
		ops:    ops,
	}
}

func (s *KeystoreAESCBC) Name() string {
	return BackendName
}

func (s *KeystoreAESCBC) MinPlatformVersion() int {
	return MinPlatformVersion
}

// Encrypt resolves the key for service, creating it on first use, and
// returns value as an envelope IV || ciphertext. The context carries trace
// state only; the call is not cancellable.
func (s *KeystoreAESCBC) Encrypt(ctx context.Context, service, itemKey, value string) (res *EncryptionResult, err error) {
	alias := ResolveAlias(service)
	_, span := s.tracer.Start(ctx, "cipherstorage.Encrypt", trace.WithAttributes(
		attribute.String("cipherstore.alias", alias),
	))
	defer func() { s.finish(ctx, span, "encrypt", err) }()

	key, err := s.prov.EnsureKey(alias)
	if err != nil {
		return nil, err
	}

	var envelope []byte
	err = key.Use(func(material []byte) error {
		var encErr error
		envelope, encErr = crypto.EncryptString(material, value)
		return encErr
	})
	if err != nil {
		s.log.Debug("encryption failed", zap.String("alias", alias), zap.Error(err))
		return nil, newError(KindEncryption, alias, err)
	}

	return &EncryptionResult{
		ItemKey:    itemKey,
		Ciphertext: envelope,
		Backend:    BackendName,
	}, nil
}

// Decrypt looks up the existing key for service and opens an envelope
// produced by Encrypt. No key is created on this path.
func (s *KeystoreAESCBC) Decrypt(ctx context.Context, service, itemKey string, ciphertext []byte) (res *DecryptionResult, err error) {
	alias := ResolveAlias(service)
	_, span := s.tracer.Start(ctx, "cipherstorage.Decrypt", trace.WithAttributes(
		attribute.String("cipherstore.alias", alias),
	))
	defer func() { s.finish(ctx, span, "decrypt", err) }()

	key, err := s.prov.Key(alias)
	if err != nil {
		return nil, err
	}

	var plaintext string
	err = key.Use(func(material []byte) error {
		var decErr error
		plaintext, decErr = crypto.DecryptString(material, ciphertext)
		return decErr
	})
	if err != nil {
		s.log.Debug("decryption failed", zap.String("alias", alias), zap.Error(err))
		return nil, newError(KindDecryption, alias, err)
	}

	return &DecryptionResult{
		ItemKey:   itemKey,
		Plaintext: plaintext,
	}, nil
}

func (s *KeystoreAESCBC) finish(ctx context.Context, span trace.Span, op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	s.ops.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
	span.End()
}
