package audit

import (
	"strings"

	adminv1 "kiosk-engine/api/admin/v1"
)

// ActionResource holds action and resource derived from a gRPC full method name.
type ActionResource struct {
	Action   string
	Resource string
}

// Admin methods whose resource is not the service they live on.
var methodOverrides = map[string]ActionResource{
	adminv1.AdminService_RegisterKiosk_FullMethodName:     {Action: "register", Resource: "kiosk"},
	adminv1.AdminService_SetKioskActive_FullMethodName:    {Action: "set_active", Resource: "kiosk"},
	adminv1.AdminService_ReapStaleSessions_FullMethodName: {Action: "reap", Resource: "session"},
}

// ParseFullMethod returns action and resource for a gRPC full method (e.g. /kiosk.admin.v1.AdminService/RegisterKiosk).
// Admin mutations use fixed names; for other methods the action is a verb derived from the method
// name and the resource is the service name without its Service suffix.
func ParseFullMethod(fullMethod string) ActionResource {
	if ar, ok := methodOverrides[fullMethod]; ok {
		return ar
	}
	// fullMethod format: /package.v1.ServiceName/MethodName
	slash := strings.LastIndex(fullMethod, "/")
	if slash < 0 {
		return ActionResource{Action: "unknown", Resource: "unknown"}
	}
	method := fullMethod[slash+1:]
	beforeSlash := fullMethod[:slash]
	dot := strings.LastIndex(beforeSlash, ".")
	if dot < 0 {
		return ActionResource{Action: strings.ToLower(method), Resource: "unknown"}
	}
	return ActionResource{Action: methodToAction(method), Resource: serviceToResource(beforeSlash[dot+1:])}
}

func serviceToResource(serviceName string) string {
	s := strings.TrimSuffix(serviceName, "Service")
	if s == "" {
		return "unknown"
	}
	return strings.ToLower(s[0:1]) + s[1:]
}

func methodToAction(method string) string {
	switch {
	case strings.HasPrefix(method, "Get") && method != "Get":
		return "get"
	case strings.HasPrefix(method, "List"):
		return "list"
	case strings.HasPrefix(method, "Register"):
		return "register"
	case strings.HasPrefix(method, "Set"):
		return "set"
	case strings.HasPrefix(method, "Reap"):
		return "reap"
	case strings.HasPrefix(method, "Replay"):
		return "replay"
	default:
		return strings.ToLower(method)
	}
}
