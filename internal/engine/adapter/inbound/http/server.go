package http_handler

import (
	"context"
	"encoding/json"
	"errors"

	sdklogger "github.com/anthanhphan/gosdk/logger"
	"github.com/anthanhphan/ledger-netengine/internal/engine/config"
	"github.com/anthanhphan/ledger-netengine/internal/engine/domain"
	"github.com/anthanhphan/ledger-netengine/internal/engine/port"
	"github.com/anthanhphan/ledger-netengine/pkg/shard"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	app     *fiber.App
	cfg     *config.Config
	service port.NetworkService
}

type submitRequest struct {
	Payload      []byte   `json:"payload"`
	Destinations [][]byte `json:"destinations"`
	// Node pins the submission, e.g. "wss://node-1:443".
	Node                 string `json:"node,omitempty"`
	CompleteOnStoredOnly *bool  `json:"complete_on_stored_only,omitempty"`
}

type submitResponse struct {
	Stored bool              `json:"stored"`
	Status domain.AtomStatus `json:"status,omitempty"`
	Error  string            `json:"error,omitempty"`
	Reason json.RawMessage   `json:"reason,omitempty"`
}

type findRequest struct {
	Shards []int64 `json:"shards"`
}

func NewServer(cfg *config.Config, service port.NetworkService, gatherer prometheus.Gatherer) *Server {
	app := fiber.New(fiber.Config{
		BodyLimit: cfg.Server.BodyLimit,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	s := &Server{
		app:     app,
		cfg:     cfg,
		service: service,
	}

	s.registerRoutes(gatherer)

	return s
}

func (s *Server) registerRoutes(gatherer prometheus.Gatherer) {
	s.app.Post("/atoms", s.handleSubmit)
	s.app.Post("/nodes/find", s.handleFindNode)
	s.app.Get("/nodes", s.handleNodes)
	if gatherer != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}

func (s *Server) Start() error {
	return s.app.Listen(s.cfg.Server.Addr)
}

func (s *Server) Stop(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) sendJSONError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}

func (s *Server) handleSubmit(c *fiber.Ctx) error {
	var req submitRequest
	if err := c.BodyParser(&req); err != nil {
		return s.sendJSONError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if len(req.Payload) == 0 {
		return s.sendJSONError(c, fiber.StatusBadRequest, "Missing 'payload'")
	}

	opts := domain.SubmitOptions{CompleteOnStoredOnly: s.cfg.Submission.CompleteOnStoredOnly}
	if req.CompleteOnStoredOnly != nil {
		opts.CompleteOnStoredOnly = *req.CompleteOnStoredOnly
	}
	if req.Node != "" {
		node, err := domain.ParseNode(req.Node)
		if err != nil {
			return s.sendJSONError(c, fiber.StatusBadRequest, err.Error())
		}
		opts.Node = &node
	} else if len(req.Destinations) == 0 {
		return s.sendJSONError(c, fiber.StatusBadRequest, "Either 'node' or 'destinations' is required")
	}

	atom := domain.Atom{Payload: req.Payload, Destinations: req.Destinations}
	res, err := s.service.Submit(c.UserContext(), atom, opts)
	if err != nil {
		sdklogger.Warnw("Submission not awaited", "error", err.Error())
		return s.sendJSONError(c, fiber.StatusServiceUnavailable, err.Error())
	}

	body := submitResponse{Stored: res.Succeeded(), Status: res.Status}
	if res.Err != nil {
		body.Error = res.Err.Error()
		var rejected *domain.RejectedError
		if errors.As(res.Err, &rejected) {
			body.Reason = rejected.Reason
		}
	}
	return c.Status(statusForResult(res)).JSON(body)
}

func (s *Server) handleFindNode(c *fiber.Ctx) error {
	var req findRequest
	if err := c.BodyParser(&req); err != nil {
		return s.sendJSONError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if len(req.Shards) == 0 {
		return s.sendJSONError(c, fiber.StatusBadRequest, "Missing 'shards'")
	}

	shards := make(shard.Set, len(req.Shards))
	for _, sh := range req.Shards {
		shards.Add(shard.Shard(sh))
	}

	node, err := s.service.FindNode(c.UserContext(), shards)
	if err != nil {
		if errors.Is(err, domain.ErrNoSuitableNode) {
			return s.sendJSONError(c, fiber.StatusNotFound, err.Error())
		}
		sdklogger.Warnw("Find node failed", "shards", shards.String(), "error", err.Error())
		return s.sendJSONError(c, fiber.StatusServiceUnavailable, err.Error())
	}

	return c.JSON(fiber.Map{
		"node": node.String(),
	})
}

func (s *Server) handleNodes(c *fiber.Ctx) error {
	nodes := s.service.Nodes()
	if nodes == nil {
		nodes = []domain.NodeState{}
	}
	return c.JSON(nodes)
}

func statusForResult(res domain.SubmitResult) int {
	switch {
	case res.Err == nil:
		return fiber.StatusOK
	case errors.Is(res.Err, domain.ErrAtomRejected):
		return fiber.StatusUnprocessableEntity
	case errors.Is(res.Err, domain.ErrSubmitTimeout):
		return fiber.StatusGatewayTimeout
	case errors.Is(res.Err, domain.ErrNoSuitableNode), errors.Is(res.Err, domain.ErrControllerStopped):
		return fiber.StatusServiceUnavailable
	case errors.Is(res.Err, domain.ErrConnectionFailed), errors.Is(res.Err, domain.ErrConnectionLost):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
