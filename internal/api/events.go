package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// StreamEvents streams an instance's lifecycle events over SSE. The
// connection stays open until the client disconnects or the broker
// shuts down. Each event is one `event:`/`data:` pair; the data line is
// the JSON event envelope.
// (GET /api/v1/instances/:id/events)
func (s *Server) StreamEvents(c echo.Context) error {
	instanceID := c.Param("id")

	// Reject streams for instances that do not exist.
	if _, err := s.Engine.State(c.Request().Context(), instanceID); err != nil {
		return httpError(err)
	}

	sub := s.Broker.Subscribe(instanceID)
	defer sub.Close()

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set(echo.HeaderConnection, "keep-alive")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-sub.C():
			if !ok {
				return nil
			}
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(resp, "event: %s\ndata: %s\n\n", evt.Type, data); err != nil {
				return nil
			}
			resp.Flush()
		}
	}
}
