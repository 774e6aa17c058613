package httpapi

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler 支持 http.Handler 接口（用于 /metrics 等）
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterAuthRoutes 注册认证与找回路由
func (r *Router) RegisterAuthRoutes(h *AuthHandler) {
	post := func(pattern string, fn http.HandlerFunc) {
		r.Handle(pattern, func(w http.ResponseWriter, req *http.Request) {
			if req.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			fn(w, req)
		})
	}

	post("/api/v1/auth/register", h.Register)
	post("/api/v1/auth/login", h.Login)
	post("/api/v1/auth/logout", h.Logout)
	post("/api/v1/auth/change-password", h.ChangePassword)
	post("/api/v1/auth/recovery/start", h.RecoveryStart)
	post("/api/v1/auth/recovery/verify", h.RecoveryVerify)
	post("/api/v1/auth/recovery/reset", h.RecoveryReset)

	// 冷启动会话恢复
	r.Handle("/api/v1/auth/session", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Session(w, req)
	})
}

// RegisterChildRoutes 注册儿童/剂次/汇总路由
func (r *Router) RegisterChildRoutes(h *ChildrenHandler) {
	// collection
	r.Handle("/api/v1/children", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			h.List(w, req)
		case http.MethodPost:
			h.Register(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	// /api/v1/children/{id}[/doses|/bookable|/edits]
	r.Handle("/api/v1/children/", func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, "/api/v1/children/")
		idPart, sub, _ := strings.Cut(rest, "/")
		childID, err := parseID(idPart)
		if err != nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		switch sub {
		case "":
			switch req.Method {
			case http.MethodGet:
				h.Get(w, req, childID)
			case http.MethodPut:
				h.Update(w, req, childID)
			case http.MethodDelete:
				h.Delete(w, req, childID)
			default:
				w.WriteHeader(http.StatusMethodNotAllowed)
			}
		case "doses":
			if req.Method != http.MethodPut {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.SaveDoses(w, req, childID)
		case "bookable":
			if req.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.Bookable(w, req, childID)
		case "edits":
			switch req.Method {
			case http.MethodPost:
				h.TrackEdit(w, req, childID)
			case http.MethodDelete:
				h.ClearEdits(w, req, childID)
			default:
				w.WriteHeader(http.StatusMethodNotAllowed)
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	r.Handle("/api/v1/summary", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Summary(w, req)
	})

	r.Handle("/api/v1/schedule", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.ScheduleList(w, req)
	})
}

// RegisterBackupRoutes 注册备份/恢复/导出路由
func (r *Router) RegisterBackupRoutes(h *BackupHandler) {
	r.Handle("/api/v1/backup", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Backup(w, req)
	})
	r.Handle("/api/v1/restore", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Restore(w, req)
	})
	r.Handle("/api/v1/export/register", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.ExportRegister(w, req)
	})
}

// RegisterOpsRoutes 注册运维路由（健康检查 + 指标）
func (r *Router) RegisterOpsRoutes() {
	r.Handle("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
	})
	r.HandleHandler("/metrics", promhttp.Handler())
}
