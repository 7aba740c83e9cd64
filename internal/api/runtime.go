package api

import (
	"fmt"
	"time"

	"github.com/JaimeStill/matchflow/internal/config"
	"github.com/JaimeStill/matchflow/internal/events"
	"github.com/JaimeStill/matchflow/internal/infrastructure"
	"github.com/JaimeStill/matchflow/pkg/agent"
)

// Runtime extends Infrastructure with the agent client and event broadcaster
// shared by the API's domain systems.
type Runtime struct {
	*infrastructure.Infrastructure
	Agent       *agent.Client
	Broadcaster *events.Broadcaster
}

// NewRuntime creates an API runtime with a module-scoped logger. When an
// event sink target is configured, the CloudEvents sink is started on the
// infrastructure lifecycle and attached to the broadcaster.
func NewRuntime(cfg *config.Config, infra *infrastructure.Infrastructure) (*Runtime, error) {
	logger := infra.Logger.With("module", "api")

	client, err := newAgentClient(&cfg.Agents, infra)
	if err != nil {
		return nil, fmt.Errorf("agent client: %w", err)
	}

	var sinks []events.Sink
	if cfg.Events.SinkTarget != "" {
		sink, err := events.NewCloudEventsSink(
			cfg.Events.SinkTarget,
			cfg.Events.SinkSource,
			cfg.Events.SinkQueue,
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("event sink: %w", err)
		}
		if err := sink.Start(infra.Lifecycle); err != nil {
			return nil, fmt.Errorf("event sink start: %w", err)
		}
		sinks = append(sinks, sink)
	}

	broadcaster := events.NewBroadcaster(cfg.Events.Buffer, logger, sinks...)
	if err := broadcaster.Start(infra.Lifecycle); err != nil {
		return nil, fmt.Errorf("broadcaster start: %w", err)
	}

	return &Runtime{
		Infrastructure: &infrastructure.Infrastructure{
			Lifecycle: infra.Lifecycle,
			Logger:    logger,
			Database:  infra.Database,
			Firestore: infra.Firestore,
			Storage:   infra.Storage,
		},
		Agent:       client,
		Broadcaster: broadcaster,
	}, nil
}

func newAgentClient(cfg *config.AgentsConfig, infra *infrastructure.Infrastructure) (*agent.Client, error) {
	signer, err := agent.NewSigner(cfg.Signing)
	if err != nil {
		return nil, err
	}

	var creds agent.CredentialSource
	switch cfg.Signing {
	case agent.SigningBearer:
		azure, err := agent.NewAzureCredentialsFromOptions(agent.AzureOptions{
			TenantID:     cfg.Azure.TenantID,
			ClientID:     cfg.Azure.ClientID,
			ClientSecret: cfg.Azure.ClientSecret,
			Scopes:       cfg.Azure.Scopes,
		})
		if err != nil {
			return nil, err
		}
		creds = azure
	default:
		creds = agent.StaticCredentials{
			KeyID:  cfg.KeyID,
			Secret: cfg.Secret,
			Now:    time.Now,
		}
	}

	return agent.New(signer, creds, cfg.ClientConfig(), infra.Logger), nil
}
