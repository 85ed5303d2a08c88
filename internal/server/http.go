package server

import (
	"encoding/json"
	nethttp "net/http"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"

	"github.com/zhiyou-ai/trip_planner/internal/conf"
	"github.com/zhiyou-ai/trip_planner/internal/service"
)

// NewHTTPServer 构造规划服务的 HTTP 入口
func NewHTTPServer(c *conf.Server, s *service.PlanningService, logger log.Logger) *http.Server {
	helper := log.NewHelper(logger)

	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
		),
	}
	if c != nil && c.HTTP != nil {
		if c.HTTP.Addr != "" {
			opts = append(opts, http.Address(c.HTTP.Addr))
		}
		if c.HTTP.Timeout != "" {
			if d, err := time.ParseDuration(c.HTTP.Timeout); err == nil {
				opts = append(opts, http.Timeout(d))
			}
		}
	}

	srv := http.NewServer(opts...)

	srv.HandleFunc("/api/planning/start", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			nethttp.Error(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		var req service.StartReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			nethttp.Error(w, "invalid request body", nethttp.StatusBadRequest)
			return
		}
		reply, err := s.Start(r.Context(), &req)
		if err != nil {
			helper.Errorf("发起规划失败: %v", err)
			nethttp.Error(w, err.Error(), nethttp.StatusInternalServerError)
			return
		}
		writeJSON(w, reply)
	})

	srv.HandleFunc("/api/planning/result", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		sessionID := r.URL.Query().Get("session_id")
		if sessionID == "" {
			nethttp.Error(w, "missing session_id", nethttp.StatusBadRequest)
			return
		}
		reply, err := s.Result(r.Context(), sessionID)
		if err != nil {
			helper.Errorf("轮询结果失败 [%s]: %v", sessionID, err)
			nethttp.Error(w, err.Error(), nethttp.StatusInternalServerError)
			return
		}
		writeJSON(w, reply)
	})

	srv.HandleFunc("/api/planning/await", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		sessionID := r.URL.Query().Get("session_id")
		if sessionID == "" {
			nethttp.Error(w, "missing session_id", nethttp.StatusBadRequest)
			return
		}
		reply, err := s.Await(r.Context(), sessionID)
		if err != nil {
			helper.Warnf("长轮询中断 [%s]: %v", sessionID, err)
			nethttp.Error(w, err.Error(), nethttp.StatusRequestTimeout)
			return
		}
		writeJSON(w, reply)
	})

	srv.HandleFunc("/api/planning/cancel", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			nethttp.Error(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		var req service.CancelReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			nethttp.Error(w, "invalid request body", nethttp.StatusBadRequest)
			return
		}
		if req.TaskID == "" {
			nethttp.Error(w, "missing taskId", nethttp.StatusBadRequest)
			return
		}
		reply, err := s.Cancel(r.Context(), &req)
		if err != nil {
			helper.Errorf("作废会话失败 [%s]: %v", req.TaskID, err)
			nethttp.Error(w, err.Error(), nethttp.StatusInternalServerError)
			return
		}
		writeJSON(w, reply)
	})

	srv.HandleFunc("/api/planning/modify", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			nethttp.Error(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		var req service.ModifyReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			nethttp.Error(w, "invalid request body", nethttp.StatusBadRequest)
			return
		}
		if req.TaskID == "" || req.Request == "" {
			nethttp.Error(w, "missing taskId or request", nethttp.StatusBadRequest)
			return
		}
		reply, err := s.Modify(r.Context(), &req)
		if err != nil {
			helper.Errorf("修改计划失败 [%s]: %v", req.TaskID, err)
			nethttp.Error(w, err.Error(), nethttp.StatusInternalServerError)
			return
		}
		writeJSON(w, reply)
	})

	srv.HandleFunc("/api/planning/markers", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		sessionID := r.URL.Query().Get("session_id")
		if sessionID == "" {
			nethttp.Error(w, "missing session_id", nethttp.StatusBadRequest)
			return
		}
		reply, err := s.Markers(r.Context(), sessionID)
		if err != nil {
			helper.Errorf("获取标注失败 [%s]: %v", sessionID, err)
			nethttp.Error(w, err.Error(), nethttp.StatusInternalServerError)
			return
		}
		writeJSON(w, reply)
	})

	return srv
}

func writeJSON(w nethttp.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}
