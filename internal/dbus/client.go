package dbus

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

// Client calls the host's control API over the session bus
type Client struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

func Dial() (*Client, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &Client{
		conn: conn,
		obj:  conn.Object(dbusServiceName, dbus.ObjectPath(dbusObjectPath)),
	}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Commands lists what Call accepts, mapped to the D-Bus method names
var Commands = map[string]string{
	"state":   "GetState",
	"status":  "GetStatus",
	"history": "GetHistory",
	"stats":   "GetStats",
	"show":    "ShowOverlay",
	"hide":    "HideOverlay",
	"start":   "StartAnalysis",
	"stop":    "StopAnalysis",
	"toggle":  "ToggleAnalysis",
}

// Call runs a ctl command and renders its reply as text
func (c *Client) Call(command string) (string, error) {
	method, ok := Commands[command]
	if !ok {
		return "", fmt.Errorf("unknown command: %s", command)
	}

	call := c.obj.Call(dbusInterface+"."+method, 0)
	if call.Err != nil {
		return "", fmt.Errorf("%s failed (is `gamecoach run` running?): %w", method, call.Err)
	}

	switch method {
	case "ToggleAnalysis":
		var enabled bool
		if err := call.Store(&enabled); err != nil {
			return "", err
		}
		if enabled {
			return "analysis enabled", nil
		}
		return "analysis disabled", nil
	case "GetState", "GetStatus", "GetHistory", "GetStats":
		var out string
		if err := call.Store(&out); err != nil {
			return "", err
		}
		return out, nil
	default:
		return "ok", nil
	}
}
