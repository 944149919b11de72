package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pegpool/internal/metrics"
	"pegpool/internal/pool"
)

const maxBodyBytes = 1 << 16

// Config wires a Server.
type Config struct {
	Engine   *pool.Engine
	Auth     *Authenticator
	Metrics  *metrics.PoolMetrics
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
	Timeout  time.Duration
}

// Server exposes an Engine over HTTP. Every engine call runs under one mutex.
type Server struct {
	mu      sync.Mutex
	engine  *pool.Engine
	auth    *Authenticator
	metrics *metrics.PoolMetrics
	gather  prometheus.Gatherer
	logger  *zap.Logger
	timeout time.Duration
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if cfg.Auth == nil {
		return nil, errors.New("authenticator is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	s := &Server{
		engine:  cfg.Engine,
		auth:    cfg.Auth,
		metrics: cfg.Metrics,
		gather:  cfg.Gatherer,
		logger:  logger,
		timeout: timeout,
	}
	info := cfg.Engine.Info()
	s.metrics.SetCollateralRatio(&info.CollateralRatio)
	return s, nil
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.gather != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gather, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/info", s.handleInfo)
		r.Get("/quote/mint", s.handleQuoteMint)
		r.Get("/quote/redeem", s.handleQuoteRedeem)
		r.Get("/accounts/{address}", s.handleAccount)
		r.Post("/ratio/refresh", s.handleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware)
			r.Post("/mint", s.handleMint)
			r.Post("/redeem", s.handleRedeem)
			r.Post("/collect", s.handleCollect)

			r.Route("/admin", func(r chi.Router) {
				r.Post("/oracle", s.handleAddress("set_oracle", s.engine.SetOracle))
				r.Post("/treasury", s.handleAddress("set_treasury", s.engine.SetTreasury))
				r.Post("/swap-strategy", s.handleAddress("set_swap_strategy", s.engine.SetSwapStrategy))
				r.Post("/ratio", s.handleValue("set_collateral_ratio", s.engine.SetCollateralRatio))
				r.Post("/ratio/override", s.handleValue("override_collateral_ratio", s.engine.OverrideCollateralRatio))
				r.Post("/ratio/min", s.handleValue("set_min_collateral_ratio", s.engine.SetMinCollateralRatio))
				r.Post("/ratio/pause", s.handlePaused("toggle_ratio_pause", s.engine.TogglePause))
				r.Post("/minting/pause", s.handlePaused("toggle_minting", s.engine.ToggleMinting))
				r.Post("/redemption/pause", s.handlePaused("toggle_redemption", s.engine.ToggleRedemption))
				r.Post("/max-supply", s.handleValue("set_max_stable_supply", s.engine.SetMaxStableSupply))
				r.Post("/fees", s.handleFees)
				r.Post("/fees/sweep", s.handleSweep)
			})
		})
	})
	return r
}

// run serializes fn against the engine and writes its result or mapped error.
func (s *Server) run(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context) (interface{}, error)) {
	s.mu.Lock()
	result, err := fn(r.Context())
	s.mu.Unlock()

	if err != nil {
		kind := errorCode(err)
		s.metrics.ObserveError(op, string(kind))
		status := statusFor(kind)
		if status == http.StatusInternalServerError {
			s.logger.Error("pool call failed", zap.String("op", op), zap.Error(err))
		} else {
			s.logger.Debug("pool call rejected", zap.String("op", op), zap.String("kind", string(kind)), zap.Error(err))
		}
		writeJSONError(w, status, string(kind), err)
		return
	}
	if result == nil {
		result = map[string]bool{"ok": true}
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "info", func(context.Context) (interface{}, error) {
		return newInfoResponse(s.engine.Info()), nil
	})
}

func (s *Server) handleQuoteMint(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.run(w, r, "calc_mint", func(ctx context.Context) (interface{}, error) {
		collateral, err := parseUnits("collateral", q.Get("collateral"))
		if err != nil {
			return nil, err
		}
		seigniorage, err := parseUnits("seigniorage", q.Get("seigniorage"))
		if err != nil {
			return nil, err
		}
		quote, err := s.engine.CalcMint(ctx, collateral, seigniorage)
		if err != nil {
			return nil, err
		}
		return newMintQuoteResponse(quote), nil
	})
}

func (s *Server) handleQuoteRedeem(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.run(w, r, "calc_redeem", func(ctx context.Context) (interface{}, error) {
		stable, err := parseUnits("stable", q.Get("stable"))
		if err != nil {
			return nil, err
		}
		quote, err := s.engine.CalcRedeem(ctx, stable)
		if err != nil {
			return nil, err
		}
		return newRedeemQuoteResponse(quote), nil
	})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(chi.URLParam(r, "address"))
	s.run(w, r, "user_info", func(context.Context) (interface{}, error) {
		if !common.IsHexAddress(raw) {
			return nil, badRequest("invalid address %q", raw)
		}
		addr := common.HexToAddress(raw)
		info := s.engine.UserInfo(addr)
		return accountResponse{
			Address:             addr.Hex(),
			PendingStable:       info.PendingStable.Dec(),
			PendingSeigniorage:  info.PendingSeigniorage.Dec(),
			PendingCollateral:   info.PendingCollateral.Dec(),
			LastActionTimestamp: info.LastActionTimestamp,
		}, nil
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "refresh_collateral_ratio", func(ctx context.Context) (interface{}, error) {
		cr, err := s.engine.RefreshCollateralRatio(ctx)
		if err != nil {
			return nil, err
		}
		return valueResponse{Value: cr.Dec()}, nil
	})
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	s.run(w, r, "mint", func(ctx context.Context) (interface{}, error) {
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		collateral, err := parseUnits("collateral_in", req.CollateralIn)
		if err != nil {
			return nil, err
		}
		maxSeigniorage, err := parseUnits("max_seigniorage_in", req.MaxSeigniorageIn)
		if err != nil {
			return nil, err
		}
		minStable, err := parseUnits("min_stable_out", req.MinStableOut)
		if err != nil {
			return nil, err
		}
		caller, _ := callerFrom(ctx)
		quote, err := s.engine.Mint(ctx, caller, pool.MintRequest{
			CollateralIn:     *collateral,
			MaxSeigniorageIn: *maxSeigniorage,
			MinStableOut:     *minStable,
		})
		if err != nil {
			return nil, err
		}
		return newMintQuoteResponse(quote), nil
	})
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	s.run(w, r, "redeem", func(ctx context.Context) (interface{}, error) {
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		stable, err := parseUnits("stable_in", req.StableIn)
		if err != nil {
			return nil, err
		}
		minSeigniorage, err := parseUnits("min_seigniorage_out", req.MinSeigniorageOut)
		if err != nil {
			return nil, err
		}
		minCollateral, err := parseUnits("min_collateral_out", req.MinCollateralOut)
		if err != nil {
			return nil, err
		}
		caller, _ := callerFrom(ctx)
		quote, err := s.engine.Redeem(ctx, caller, pool.RedeemRequest{
			StableIn:          *stable,
			MinSeigniorageOut: *minSeigniorage,
			MinCollateralOut:  *minCollateral,
		})
		if err != nil {
			return nil, err
		}
		return newRedeemQuoteResponse(quote), nil
	})
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "collect", func(ctx context.Context) (interface{}, error) {
		caller, _ := callerFrom(ctx)
		result, err := s.engine.Collect(ctx, caller)
		if err != nil {
			return nil, err
		}
		resp := collectResponse{Legs: make([]legResponse, 0, len(result.Legs))}
		for _, leg := range result.Legs {
			resp.Legs = append(resp.Legs, legResponse{Asset: leg.Asset, Amount: leg.Amount.Dec()})
		}
		return resp, nil
	})
}

type addressSetter func(ctx context.Context, caller, addr common.Address) error

func (s *Server) handleAddress(op string, set addressSetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addressRequest
		s.run(w, r, op, func(ctx context.Context) (interface{}, error) {
			if err := decodeBody(r, &req); err != nil {
				return nil, err
			}
			addr := strings.TrimSpace(req.Address)
			if addr != "" && !common.IsHexAddress(addr) {
				return nil, badRequest("invalid address %q", addr)
			}
			caller, _ := callerFrom(ctx)
			return nil, set(ctx, caller, common.HexToAddress(addr))
		})
	}
}

func (s *Server) handleValue(op string, set func(ctx context.Context, caller common.Address, value *uint256.Int) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req valueRequest
		s.run(w, r, op, func(ctx context.Context) (interface{}, error) {
			if err := decodeBody(r, &req); err != nil {
				return nil, err
			}
			if strings.TrimSpace(req.Value) == "" {
				return nil, badRequest("value is required")
			}
			value, err := parseUnits("value", req.Value)
			if err != nil {
				return nil, err
			}
			caller, _ := callerFrom(ctx)
			return nil, set(ctx, caller, value)
		})
	}
}

func (s *Server) handlePaused(op string, set func(ctx context.Context, caller common.Address, paused bool) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pausedRequest
		s.run(w, r, op, func(ctx context.Context) (interface{}, error) {
			if err := decodeBody(r, &req); err != nil {
				return nil, err
			}
			caller, _ := callerFrom(ctx)
			return nil, set(ctx, caller, req.Paused)
		})
	}
}

func (s *Server) handleFees(w http.ResponseWriter, r *http.Request) {
	var req feesRequest
	s.run(w, r, "set_fees", func(ctx context.Context) (interface{}, error) {
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		minting, err := parseUnits("minting_fee_rate", req.MintingFeeRate)
		if err != nil {
			return nil, err
		}
		redemption, err := parseUnits("redemption_fee_rate", req.RedemptionFeeRate)
		if err != nil {
			return nil, err
		}
		caller, _ := callerFrom(ctx)
		return nil, s.engine.SetFees(ctx, caller, minting, redemption)
	})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "sweep_fees", func(ctx context.Context) (interface{}, error) {
		caller, _ := callerFrom(ctx)
		swept, err := s.engine.SweepFees(ctx, caller)
		if err != nil {
			return nil, err
		}
		return valueResponse{Value: swept.Dec()}, nil
	})
}

func decodeBody(r *http.Request, v interface{}) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(data) == 0 {
		return badRequest("request body is empty")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return badRequest("decode request: %v", err)
	}
	return nil
}
