package app

import (
	"fmt"
	"strings"

	"github.com/surveylab/codeframe-backend/internal/clients/clusterer"
	"github.com/surveylab/codeframe-backend/internal/clients/gcp"
	"github.com/surveylab/codeframe-backend/internal/clients/kgraph"
	"github.com/surveylab/codeframe-backend/internal/clients/openai"
	"github.com/surveylab/codeframe-backend/internal/clients/redis"
	"github.com/surveylab/codeframe-backend/internal/clients/websearch"
	"github.com/surveylab/codeframe-backend/internal/platform/envutil"
	"github.com/surveylab/codeframe-backend/internal/platform/logger"
)

type Clients struct {
	Openai          openai.Client
	Clusterer       clusterer.Client
	Vision          gcp.Vision
	WebSearch       websearch.Client
	KGraph          kgraph.Client
	EventBus        redis.EventBus
	ValidationCache redis.ValidationCache
}

// wireClients builds every external capability client. Openai and the
// clusterer are hard requirements; the evidence sources and redis are
// optional so a partial deployment still serves generations.
func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")

	openaiClient, err := openai.NewClient(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}
	clustererClient, err := clusterer.NewClient(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init clusterer client: %w", err)
	}

	out := Clients{
		Openai:    openaiClient,
		Clusterer: clustererClient,
	}

	if vision, verr := gcp.NewVision(log); verr != nil {
		log.Warn("Vision client unavailable, logo evidence disabled", "error", verr)
	} else {
		out.Vision = vision
	}

	if strings.TrimSpace(envutil.String("WEBSEARCH_URL", "")) != "" {
		search, serr := websearch.NewClient(log)
		if serr != nil {
			return Clients{}, fmt.Errorf("init websearch client: %w", serr)
		}
		out.WebSearch = search
	} else {
		log.Warn("WEBSEARCH_URL unset, search evidence disabled")
	}

	if strings.TrimSpace(envutil.String("KGRAPH_URL", "")) != "" {
		kg, kerr := kgraph.NewClient(log)
		if kerr != nil {
			return Clients{}, fmt.Errorf("init kgraph client: %w", kerr)
		}
		out.KGraph = kg
	} else {
		log.Warn("KGRAPH_URL unset, knowledge graph evidence disabled")
	}

	if strings.TrimSpace(envutil.String("REDIS_ADDR", "")) != "" {
		bus, berr := redis.NewEventBus(log)
		if berr != nil {
			return Clients{}, fmt.Errorf("init redis event bus: %w", berr)
		}
		out.EventBus = bus

		cache, cerr := redis.NewValidationCache(log)
		if cerr != nil {
			return Clients{}, fmt.Errorf("init validation cache: %w", cerr)
		}
		out.ValidationCache = cache
	} else {
		log.Warn("REDIS_ADDR unset, event bus and validation cache disabled")
	}

	return out, nil
}

func (c Clients) Close() {
	if c.Vision != nil {
		_ = c.Vision.Close()
	}
	if c.EventBus != nil {
		_ = c.EventBus.Close()
	}
	if c.ValidationCache != nil {
		_ = c.ValidationCache.Close()
	}
}
