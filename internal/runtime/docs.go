package runtime

import (
	"net/http"
	"strings"
	"time"

	"github.com/invopop/jsonschema"

	jsoncodec "github.com/drblury/rpcflow/internal/runtime/jsoncodec"
	backend "github.com/drblury/rpcflow/transport"
)

// DocsPath is where the docs endpoint is mounted on Config.DocsPort.
const DocsPath = "/api/rpcs"

// RPCInfo describes one registered RPC on the docs endpoint.
type RPCInfo struct {
	Channel  string             `json:"channel"`
	Type     string             `json:"type"`
	Request  *jsonschema.Schema `json:"request,omitempty"`
	Response *jsonschema.Schema `json:"response,omitempty"`
	Stats    *HandlerStats      `json:"stats,omitempty"`
}

// DocsResponse is the body served on DocsPath.
type DocsResponse struct {
	Server       string               `json:"server"`
	PubSubSystem string               `json:"pubsub_system"`
	State        string               `json:"state"`
	Capabilities backend.Capabilities `json:"capabilities"`
	RequestTopic string               `json:"request_topic_prefix"`
	ReplyTopic   string               `json:"response_topic_prefix"`
	RPCs         []RPCInfo            `json:"rpcs"`
	CollectedAt  time.Time            `json:"collected_at"`
}

// Docs assembles the docs endpoint body.
func (s *Service) Docs() DocsResponse {
	docs := s.schemas.Documents()
	rpcs := make([]RPCInfo, 0, len(docs))
	for _, doc := range docs {
		rpcs = append(rpcs, RPCInfo{
			Channel:  doc.Channel,
			Type:     doc.Type,
			Request:  doc.Request,
			Response: doc.Response,
			Stats:    s.metrics.GetHandlerStats(doc.Channel, doc.Type),
		})
	}
	return DocsResponse{
		Server:       s.Conf.Name,
		PubSubSystem: s.Conf.PubSubSystem,
		State:        s.State().String(),
		Capabilities: s.Capabilities(),
		RequestTopic: s.scheme.RequestPrefix,
		ReplyTopic:   s.scheme.ResponsePrefix,
		RPCs:         rpcs,
		CollectedAt:  time.Now(),
	}
}

func (s *Service) handleGetRPCs(w http.ResponseWriter, r *http.Request) {
	if s.Conf != nil && len(s.Conf.DocsCORSAllowedOrigins) > 0 {
		origin := r.Header.Get("Origin")
		allowedOrigin := s.getAllowedCORSOrigin(origin)
		if allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
	}

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet:
	default:
		w.Header().Set("Allow", "GET, OPTIONS")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := jsoncodec.Marshal(s.Docs())
	if err != nil {
		s.Logger.Error("Failed to encode RPC docs", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

// getAllowedCORSOrigin returns the Access-Control-Allow-Origin value for
// requestOrigin, or an empty string when the origin is not allowed.
func (s *Service) getAllowedCORSOrigin(requestOrigin string) string {
	if s.Conf == nil {
		return ""
	}
	for _, allowed := range s.Conf.DocsCORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
