package rpcserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/PBH-BTN/pbh-adapter-deluge/internal/types"
	"go.uber.org/zap"
)

type method func(params []json.RawMessage) (interface{}, error)

var errBadParams = errors.New("invalid params")

func (s *Server) pluginMethods() map[string]method {
	ns := types.RPCNamespace + "."
	return map[string]method{
		ns + "get_blocklist": func(params []json.RawMessage) (interface{}, error) {
			return s.manager.Snapshot(), nil
		},
		ns + "replace_blocklist": func(params []json.RawMessage) (interface{}, error) {
			ips, err := stringListParam(params)
			if err != nil {
				return nil, err
			}
			return struct{}{}, s.manager.Replace(ips)
		},
		ns + "ban_ips": func(params []json.RawMessage) (interface{}, error) {
			ips, err := stringListParam(params)
			if err != nil {
				return nil, err
			}
			_, err = s.manager.Ban(ips)
			return struct{}{}, err
		},
		ns + "unban_ips": func(params []json.RawMessage) (interface{}, error) {
			ips, err := stringListParam(params)
			if err != nil {
				return nil, err
			}
			_, err = s.manager.Unban(ips)
			return struct{}{}, err
		},
		ns + "get_config": func(params []json.RawMessage) (interface{}, error) {
			return s.manager.Config(), nil
		},
		ns + "set_config": func(params []json.RawMessage) (interface{}, error) {
			if len(params) != 1 {
				return nil, errBadParams
			}
			var cfg map[string]json.RawMessage
			if err := json.Unmarshal(params[0], &cfg); err != nil {
				return nil, fmt.Errorf("%w: %v", errBadParams, err)
			}
			return nil, s.manager.SetConfig(s.configs, cfg)
		},
	}
}

func stringListParam(params []json.RawMessage) ([]string, error) {
	if len(params) != 1 {
		return nil, errBadParams
	}
	var ips []string
	if err := json.Unmarshal(params[0], &ips); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadParams, err)
	}
	return ips, nil
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	var req types.RPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		zap.L().Warn("Failed to decode rpc request", zap.Error(err))
		http.Error(w, "invalid JSON-RPC request", http.StatusBadRequest)
		return
	}

	result, rpcErr := s.dispatch(w, r, req)
	writeResponse(w, req.ID, result, rpcErr)
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req types.RPCRequest) (interface{}, *types.RPCErrorBody) {
	switch req.Method {
	case "auth.login":
		var password string
		if len(req.Params) != 1 || json.Unmarshal(req.Params[0], &password) != nil {
			return nil, callFailed(errBadParams)
		}
		if password != s.cfg.WebPassword {
			zap.L().Warn("Rejected web login", zap.String("remote", r.RemoteAddr))
			return false, nil
		}
		token, err := s.newSession()
		if err != nil {
			return nil, callFailed(err)
		}
		http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: token, Path: "/", HttpOnly: true})
		zap.L().Info("Web session opened", zap.String("remote", r.RemoteAddr))
		return true, nil
	case "auth.check_session":
		return s.authenticated(r), nil
	case "auth.delete_session":
		if c, err := r.Cookie(sessionCookie); err == nil {
			s.sessions.Remove(c.Value)
		}
		return true, nil
	}

	m, ok := s.methods[req.Method]
	if !ok {
		return nil, &types.RPCErrorBody{Message: "Unknown method", Code: types.RPCErrUnknownMethod}
	}
	if !s.authenticated(r) {
		return nil, &types.RPCErrorBody{Message: "Not authenticated", Code: types.RPCErrNotAuthenticated}
	}

	result, err := m(req.Params)
	if err != nil {
		zap.L().Warn("RPC call failed", zap.String("method", req.Method), zap.Error(err))
		return nil, callFailed(err)
	}
	zap.L().Debug("RPC call served", zap.String("method", req.Method))
	return result, nil
}

func callFailed(err error) *types.RPCErrorBody {
	return &types.RPCErrorBody{Message: err.Error(), Code: types.RPCErrCallFailed}
}

func writeResponse(w http.ResponseWriter, id int64, result interface{}, rpcErr *types.RPCErrorBody) {
	raw, err := json.Marshal(result)
	if err != nil {
		zap.L().Error("Failed to marshal rpc result", zap.Error(err))
		raw = []byte("null")
		rpcErr = callFailed(err)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(types.RPCResponse{Result: raw, Error: rpcErr, ID: id}); err != nil {
		zap.L().Warn("Failed to write rpc response", zap.Error(err))
	}
}
