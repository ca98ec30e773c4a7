package api

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/camkeep/internal/api/models"
)

var jpegMagic = []byte{0xFF, 0xD8}

func (s *Server) registerCaptureRoutes() {
	if s.options.Status != nil {
		huma.Register(s.api, huma.Operation{
			OperationID: "get-status",
			Method:      http.MethodGet,
			Path:        "/api/status",
			Summary:     "Capture status",
			Description: "Current capture loop state, session and counters",
			Tags:        []string{"capture"},
			Security:    withAuth(),
			Errors:      []int{401},
		}, func(_ context.Context, _ *struct{}) (*models.StatusResponse, error) {
			st := s.options.Status.Status()
			return &models.StatusResponse{
				Body: models.StatusData{
					State:      st.State.String(),
					Since:      st.Since.Format(time.RFC3339),
					SessionID:  st.SessionID,
					Device:     st.Device,
					Frames:     st.Frames,
					Failures:   st.Failures,
					Reconnects: st.Reconnects,
					LastError:  st.LastError,
				},
			}, nil
		})
	}

	if s.options.Devices != nil {
		huma.Register(s.api, huma.Operation{
			OperationID: "list-devices",
			Method:      http.MethodGet,
			Path:        "/api/devices",
			Summary:     "List devices",
			Description: "Probe for video nodes without opening them",
			Tags:        []string{"devices"},
			Security:    withAuth(),
			Errors:      []int{401},
		}, func(_ context.Context, _ *struct{}) (*models.DeviceResponse, error) {
			found := s.options.Devices.Devices()
			list := make([]models.DeviceInfo, 0, len(found))
			for _, d := range found {
				list = append(list, models.DeviceInfo{
					DevicePath: d.DevicePath,
					DeviceName: d.DeviceName,
					DeviceID:   d.DeviceID,
					Index:      d.Index,
				})
			}
			return &models.DeviceResponse{
				Body: models.DeviceData{
					State:   s.options.Devices.Probe().String(),
					Devices: list,
					Count:   len(list),
				},
			}, nil
		})
	}

	if s.options.Snapshot != nil {
		huma.Register(s.api, huma.Operation{
			OperationID: "get-snapshot",
			Method:      http.MethodGet,
			Path:        "/api/snapshot",
			Summary:     "Latest frame",
			Description: "Most recent frame exactly as captured",
			Tags:        []string{"capture"},
			Security:    withAuth(),
			Errors:      []int{401, 404},
		}, func(_ context.Context, _ *struct{}) (*models.SnapshotResponse, error) {
			frame, at, seq, ok := s.options.Snapshot.Snapshot()
			if !ok {
				return nil, huma.Error404NotFound("No frame captured yet")
			}
			return &models.SnapshotResponse{
				ContentType: frameContentType(frame),
				Sequence:    strconv.FormatUint(seq, 10),
				CapturedAt:  at.Format(time.RFC3339Nano),
				Body:        frame,
			}, nil
		})
	}
}

func frameContentType(frame []byte) string {
	if bytes.HasPrefix(frame, jpegMagic) {
		return "image/jpeg"
	}
	return "application/octet-stream"
}
