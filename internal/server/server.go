package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ZehenForever/dpsmeter/internal/engine"
	"github.com/ZehenForever/dpsmeter/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Options struct {
	Addr string
	// OnSettings is called after a mode or identity change is applied.
	OnSettings func(Settings)
}

// Server is the overlay API: JSON snapshots, detail queries, controls and a
// websocket push of every polled snapshot.
type Server struct {
	agg      *engine.Aggregator
	hub      *Hub
	opts     Options
	log      zerolog.Logger
	upgrader websocket.Upgrader
	http     *http.Server
}

func New(agg *engine.Aggregator, opts Options, log zerolog.Logger) *Server {
	s := &Server{
		agg:  agg,
		opts: opts,
		log:  log.With().Str("component", "server").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.hub = NewHub(s.log)
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Get("/dps", s.getDps)
		r.Get("/details/{target}", s.getDetails)
		r.Get("/context", s.getContext)
		r.Get("/series/{target}", s.getSeries)
		r.Post("/reset", s.postReset)
		r.Put("/mode", s.putMode)
		r.Get("/identity", s.getIdentity)
		r.Put("/identity", s.putIdentity)
		r.Get("/ws", s.getWS)
	})
	return r
}

// Publish pushes a snapshot to every websocket subscriber. It matches the
// callback signature of Aggregator.Run.
func (s *Server) Publish(snap engine.DpsSnapshot) {
	s.hub.broadcastJSON(Message{Type: MessageDps, Data: snap})
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.http.Addr).Msg("overlay api listening")
		errc <- s.http.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return ctx.Err()
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, ErrorResponse{Error: msg})
}

func (s *Server) getDps(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.agg.Poll())
}

func (s *Server) getDetails(w http.ResponseWriter, r *http.Request) {
	target, err := strconv.Atoi(chi.URLParam(r, "target"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid target id")
		return
	}
	actors, err := intList(r.URL.Query()["actor"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid actor id")
		return
	}
	respondJSON(w, http.StatusOK, s.agg.Details(target, actors...))
}

// intList accepts repeated and comma separated values.
func intList(vals []string) ([]int, error) {
	var out []int
	for _, v := range vals {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			n, err := strconv.Atoi(part)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *Server) getContext(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.agg.DetailsContext())
}

func (s *Server) getSeries(w http.ResponseWriter, r *http.Request) {
	target, err := strconv.Atoi(chi.URLParam(r, "target"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid target id")
		return
	}
	q := r.URL.Query()
	bucketSec, _ := strconv.ParseInt(q.Get("bucketSec"), 10, 64)
	maxBuckets, _ := strconv.Atoi(q.Get("maxBuckets"))
	mine := strings.EqualFold(q.Get("mode"), "me")
	respondJSON(w, http.StatusOK, s.agg.Series(target, bucketSec, maxBuckets, mine))
}

func (s *Server) postReset(w http.ResponseWriter, r *http.Request) {
	if v := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("identity"))); v == "1" || v == "true" {
		s.agg.ResetIdentity()
		s.notifySettings()
	} else {
		s.agg.Reset()
	}
	s.hub.broadcastJSON(Message{Type: MessageReset, Data: OkResponse{Ok: true}})
	respondJSON(w, http.StatusOK, OkResponse{Ok: true})
}

func (s *Server) putMode(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Mode != "" {
		m, err := engine.ParseMode(req.Mode)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.agg.SetSelectionMode(m)
	}
	switch engine.LegacyMode(req.Legacy) {
	case "":
	case engine.LegacyAll, engine.LegacyBossOnly:
		s.agg.SetLegacyMode(engine.LegacyMode(req.Legacy))
	default:
		respondError(w, http.StatusBadRequest, "unknown legacy mode")
		return
	}
	if req.LastHitWindowSec != nil {
		s.agg.SetLastHitWindow(time.Duration(*req.LastHitWindowSec) * time.Second)
	}
	if req.AllTargetsWindowSec != nil {
		s.agg.SetAllTargetsWindow(time.Duration(*req.AllTargetsWindowSec) * time.Second)
	}
	s.notifySettings()
	respondJSON(w, http.StatusOK, OkResponse{Ok: true})
}

func (s *Server) getIdentity(w http.ResponseWriter, r *http.Request) {
	id := s.agg.Identity()
	respondJSON(w, http.StatusOK, IdentityResponse{CharacterName: id.CharacterName(), PlayerID: id.PlayerID()})
}

func (s *Server) putIdentity(w http.ResponseWriter, r *http.Request) {
	var req IdentityRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json")
		return
	}
	id := s.agg.Identity()
	if req.CharacterName != nil {
		id.SetCharacterName(*req.CharacterName)
	}
	if req.ActorID != nil {
		id.BindActorID(*req.ActorID)
	}
	s.notifySettings()
	respondJSON(w, http.StatusOK, IdentityResponse{CharacterName: id.CharacterName(), PlayerID: id.PlayerID()})
}

func (s *Server) notifySettings() {
	if s.opts.OnSettings == nil {
		return
	}
	id := s.agg.Identity()
	s.opts.OnSettings(Settings{
		Mode:          s.agg.SelectionMode(),
		Legacy:        s.agg.LegacyMode(),
		CharacterName: id.CharacterName(),
		ActorID:       id.PlayerID(),
	})
}

func (s *Server) getWS(w http.ResponseWriter, r *http.Request) {
	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	remote := r.RemoteAddr
	s.log.Debug().Str("remote", remote).Msg("ws connect")

	client := newWSClient(c)
	s.hub.add(client)

	_ = c.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.SetPongHandler(func(string) error {
		_ = c.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	go s.hub.writePump(client)

	_ = client.enqueueJSON(Message{Type: MessageDps, Data: s.agg.Poll()})

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			s.log.Debug().Str("remote", remote).Err(err).Msg("ws read closed")
			break
		}
	}

	s.hub.remove(client)
	client.close()
}
