// Package identity implements the cross-account credential broker. It mints
// short-lived tenant credentials through one of two strategies and caches
// them per account until the TTL lapses.
package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog"

	awsx "github.com/saltware-cloud/opsassistant/internal/aws"
	"github.com/saltware-cloud/opsassistant/internal/logging"
)

// AssumeRoleAPI is the slice of the STS client the broker depends on.
type AssumeRoleAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// STSFactory builds an STS client. A nil credential argument means "use the
// ambient identity" (env, shared config, instance profile).
type STSFactory func(ctx context.Context, creds *awsx.SessionCredentials) (AssumeRoleAPI, error)

// NewSTSFactory wires the default STS construction through the client factory.
func NewSTSFactory(factory *awsx.ClientFactory, region string) STSFactory {
	return func(ctx context.Context, creds *awsx.SessionCredentials) (AssumeRoleAPI, error) {
		if creds == nil {
			cfg, err := awsx.AmbientConfig(ctx, region)
			if err != nil {
				return nil, err
			}
			return factory.STSClientFromConfig(cfg), nil
		}
		return factory.STSClient(*creds), nil
	}
}

// Options configures a Broker.
type Options struct {
	Secrets           SecretSource
	STS               STSFactory
	TenantRoleName    string
	BridgeRoleARN     string
	BridgeExternalID  string
	SessionNamePrefix string
	Region            string
	TTL               time.Duration
}

type cacheEntry struct {
	creds      awsx.SessionCredentials
	acquiredAt time.Time
}

type mintCall struct {
	done  chan struct{}
	creds awsx.SessionCredentials
	err   error
}

// Broker mints and caches per-account session credentials. A single mutex
// guards the cache; remote credential acquisition happens outside the lock,
// with concurrent cold-cache callers coalesced onto one in-flight mint.
type Broker struct {
	mu       sync.Mutex
	cache    map[string]cacheEntry
	inflight map[string]*mintCall
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time
}

// NewBroker creates a credential broker.
func NewBroker(opts Options, logger zerolog.Logger) *Broker {
	if opts.TTL <= 0 {
		opts.TTL = 50 * time.Minute
	}
	return &Broker{
		cache:    make(map[string]cacheEntry),
		inflight: make(map[string]*mintCall),
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// ValidateAccountID checks that id is exactly 12 ASCII digits.
func ValidateAccountID(id string) error {
	if len(id) != 12 {
		return fmt.Errorf("%w: %q", ErrInvalidAccountID, id)
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return fmt.Errorf("%w: %q", ErrInvalidAccountID, id)
		}
	}
	return nil
}

// Acquire returns session credentials for the account, minting them if the
// cache has no fresh entry. Callers always receive a copy.
func (b *Broker) Acquire(ctx context.Context, accountID string) (awsx.SessionCredentials, error) {
	if err := ValidateAccountID(accountID); err != nil {
		return awsx.SessionCredentials{}, err
	}

	b.mu.Lock()
	if entry, ok := b.cache[accountID]; ok {
		if b.now().Sub(entry.acquiredAt) < b.opts.TTL {
			b.mu.Unlock()
			return entry.creds, nil
		}
		delete(b.cache, accountID)
	}

	if call, ok := b.inflight[accountID]; ok {
		b.mu.Unlock()
		select {
		case <-call.done:
			return call.creds, call.err
		case <-ctx.Done():
			return awsx.SessionCredentials{}, ctx.Err()
		}
	}

	call := &mintCall{done: make(chan struct{})}
	b.inflight[accountID] = call
	b.mu.Unlock()

	creds, err := b.mint(ctx, accountID)

	b.mu.Lock()
	if err == nil {
		b.cache[accountID] = cacheEntry{creds: creds, acquiredAt: b.now()}
	}
	delete(b.inflight, accountID)
	b.mu.Unlock()

	call.creds = creds
	call.err = err
	close(call.done)
	return creds, err
}

// Invalidate evicts the cache entry for one account.
func (b *Broker) Invalidate(accountID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.cache, accountID)
}

// Purge evicts every cached entry.
func (b *Broker) Purge() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.cache)
	b.cache = make(map[string]cacheEntry)
	return n
}

// mint tries strategy U (bootstrap keypair, direct tenant assume) first, then
// strategy R (ambient identity, bridge role, tenant role). Neither is held
// under the cache lock.
func (b *Broker) mint(ctx context.Context, accountID string) (awsx.SessionCredentials, error) {
	var userErr error
	if b.opts.Secrets != nil {
		creds, err := b.mintFromBootstrap(ctx, accountID)
		if err == nil {
			b.logger.Info().Str("account_id", accountID).Str("strategy", "user").Msg("credentials minted")
			return creds, nil
		}
		userErr = err
		b.logger.Warn().Str("account_id", accountID).Err(err).Msg("direct strategy failed, trying role chain")
	} else {
		userErr = fmt.Errorf("no bootstrap secret source configured")
	}

	creds, chainErr := b.mintFromChain(ctx, accountID)
	if chainErr == nil {
		b.logger.Info().Str("account_id", accountID).Str("strategy", "chain").Msg("credentials minted")
		return creds, nil
	}

	b.logger.Error().
		Str("account_id", accountID).
		AnErr("user_strategy", userErr).
		AnErr("chain_strategy", chainErr).
		Msg("all credential strategies failed")
	return awsx.SessionCredentials{}, fmt.Errorf("%w: account %s (user: %v; chain: %v)",
		ErrAssumeRoleDenied, accountID, userErr, chainErr)
}

// mintFromBootstrap is strategy U: an STS session built from the bootstrap
// keypair assumes the tenant role directly.
func (b *Broker) mintFromBootstrap(ctx context.Context, accountID string) (awsx.SessionCredentials, error) {
	keys, err := b.opts.Secrets.Fetch(ctx)
	if err != nil {
		return awsx.SessionCredentials{}, err
	}

	client, err := b.opts.STS(ctx, &awsx.SessionCredentials{
		AccessKeyID:     keys.AccessKey,
		SecretAccessKey: keys.SecretKey,
		Region:          b.opts.Region,
	})
	if err != nil {
		return awsx.SessionCredentials{}, fmt.Errorf("building sts client: %w", err)
	}

	return b.assumeRole(ctx, client, b.tenantRoleARN(accountID),
		b.opts.SessionNamePrefix+"-"+accountID, "")
}

// mintFromChain is strategy R: the ambient identity assumes the bridge role,
// then the bridge session assumes the tenant role. Both hops carry the
// bridge external id.
func (b *Broker) mintFromChain(ctx context.Context, accountID string) (awsx.SessionCredentials, error) {
	ambient, err := b.opts.STS(ctx, nil)
	if err != nil {
		return awsx.SessionCredentials{}, fmt.Errorf("resolving ambient identity: %w", err)
	}

	bridge, err := b.assumeRole(ctx, ambient, b.opts.BridgeRoleARN,
		b.opts.SessionNamePrefix+"-Bridge", b.opts.BridgeExternalID)
	if err != nil {
		return awsx.SessionCredentials{}, fmt.Errorf("bridge hop: %w", err)
	}

	client, err := b.opts.STS(ctx, &bridge)
	if err != nil {
		return awsx.SessionCredentials{}, fmt.Errorf("building bridge sts client: %w", err)
	}

	creds, err := b.assumeRole(ctx, client, b.tenantRoleARN(accountID),
		b.opts.SessionNamePrefix+"-"+accountID, b.opts.BridgeExternalID)
	if err != nil {
		return awsx.SessionCredentials{}, fmt.Errorf("tenant hop: %w", err)
	}
	return creds, nil
}

func (b *Broker) assumeRole(ctx context.Context, client AssumeRoleAPI, roleARN, sessionName, externalID string) (awsx.SessionCredentials, error) {
	input := &sts.AssumeRoleInput{
		RoleArn:         &roleARN,
		RoleSessionName: &sessionName,
		DurationSeconds: aws.Int32(3600),
	}
	if externalID != "" {
		input.ExternalId = &externalID
	}

	out, err := client.AssumeRole(ctx, input)
	if err != nil {
		return awsx.SessionCredentials{}, fmt.Errorf("AssumeRole(%s): %w", roleARN, err)
	}
	if out.Credentials == nil {
		return awsx.SessionCredentials{}, fmt.Errorf("AssumeRole(%s): empty credentials", roleARN)
	}

	b.logger.Debug().
		Str("role_arn", roleARN).
		Str("access_key_id", aws.ToString(out.Credentials.AccessKeyId)).
		Str("session", logging.RedactValue(aws.ToString(out.Credentials.SessionToken))).
		Msg("assume role succeeded")

	return awsx.SessionCredentials{
		AccessKeyID:     aws.ToString(out.Credentials.AccessKeyId),
		SecretAccessKey: aws.ToString(out.Credentials.SecretAccessKey),
		SessionToken:    aws.ToString(out.Credentials.SessionToken),
		Region:          b.opts.Region,
	}, nil
}

func (b *Broker) tenantRoleARN(accountID string) string {
	return "arn:aws:iam::" + accountID + ":role/" + b.opts.TenantRoleName
}
