package httpapi

import (
	"net/http"
	"strings"

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

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterHealthRoutes 注册健康检查
func (r *Router) RegisterHealthRoutes() {
	r.Handle("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
	})
}

// RegisterEventRoutes 注册事件提交路由
func (r *Router) RegisterEventRoutes(h *EventHandler) {
	r.Handle("/floor/api/v1/events", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Submit(w, req)
	})
}

// RegisterBatchRoutes 注册批次查询与追溯路由
func (r *Router) RegisterBatchRoutes(h *BatchHandler) {
	// batches/{id}
	// batches/{id}/trace
	// batches/{id}/trace/export
	r.Handle("/floor/api/v1/batches/", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rest := strings.TrimPrefix(req.URL.Path, "/floor/api/v1/batches/")
		parts := strings.Split(rest, "/")
		switch {
		case len(parts) == 1 && parts[0] != "":
			h.Get(w, req, parts[0])
		case len(parts) == 2 && parts[1] == "trace":
			h.Trace(w, req, parts[0])
		case len(parts) == 3 && parts[1] == "trace" && parts[2] == "export":
			h.ExportTrace(w, req, parts[0])
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

// RegisterMachineRoutes 注册机台与 OEE 路由
func (r *Router) RegisterMachineRoutes(h *MachineHandler) {
	r.Handle("/floor/api/v1/machines", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.List(w, req)
	})

	// machines/{id}/oee
	r.Handle("/floor/api/v1/machines/", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rest := strings.TrimPrefix(req.URL.Path, "/floor/api/v1/machines/")
		parts := strings.Split(rest, "/")
		if len(parts) == 2 && parts[1] == "oee" && parts[0] != "" {
			h.GetOEE(w, req, parts[0])
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
}

// RegisterBottleneckRoutes 注册瓶颈扫描路由
func (r *Router) RegisterBottleneckRoutes(h *BottleneckHandler) {
	r.Handle("/floor/api/v1/bottlenecks", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Scan(w, req)
	})
}

// RegisterAlertRoutes 注册报警查询与操作员动作路由
func (r *Router) RegisterAlertRoutes(h *AlertHandler) {
	r.Handle("/floor/api/v1/alerts", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.List(w, req)
	})

	// alerts/{id}/acknowledge
	// alerts/{id}/resolve
	r.Handle("/floor/api/v1/alerts/", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rest := strings.TrimPrefix(req.URL.Path, "/floor/api/v1/alerts/")
		parts := strings.Split(rest, "/")
		if len(parts) != 2 || parts[0] == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch parts[1] {
		case "acknowledge":
			h.Acknowledge(w, req, parts[0])
		case "resolve":
			h.Resolve(w, req, parts[0])
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}
