package driver

import (
	"context"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nlcache/nlcache/pkg/cleanup"
	"github.com/nlcache/nlcache/pkg/log"
	"github.com/nlcache/nlcache/pkg/volume"
)

// ControllerServer implements the CSI controller service. Volumes have no
// central backing store to provision; CreateVolume only mints an ID, and the
// real work happens in DeleteVolume, which hands the volume to the
// distributed cleanup protocol.
type ControllerServer struct {
	csi.UnimplementedControllerServer

	coordinator *cleanup.Coordinator
	logger      zerolog.Logger
}

// NewControllerServer creates the controller service
func NewControllerServer(coordinator *cleanup.Coordinator) *ControllerServer {
	return &ControllerServer{
		coordinator: coordinator,
		logger:      log.WithComponent("csi-controller"),
	}
}

// CreateVolume mints a volume ID for the given name. The ID is derived
// deterministically from the name, which makes retried calls idempotent
// without any provisioning state on our side. No storage is allocated here;
// node-local directories are created lazily on first publish.
func (s *ControllerServer) CreateVolume(ctx context.Context, req *csi.CreateVolumeRequest) (*csi.CreateVolumeResponse, error) {
	if req.GetName() == "" {
		return nil, status.Error(codes.InvalidArgument, "volume name is required")
	}
	if err := validateCapabilities(req.GetVolumeCapabilities()); err != nil {
		return nil, err
	}

	volumeID := volume.GenerateID(req.GetName())
	s.logger.Info().Str("name", req.GetName()).Str("volume_id", volumeID).
		Msg("Created volume")

	return &csi.CreateVolumeResponse{
		Volume: &csi.Volume{
			VolumeId:      volumeID,
			CapacityBytes: req.GetCapacityRange().GetRequiredBytes(),
		},
	}, nil
}

// DeleteVolume initiates the distributed cleanup for a volume. The call
// returns success even when the cleanup request cannot be written: blocking
// the orchestrator's deletion retries would not make the record store any
// healthier, and the reconciler's TTL bounds how long an unresolved record
// can linger.
func (s *ControllerServer) DeleteVolume(ctx context.Context, req *csi.DeleteVolumeRequest) (*csi.DeleteVolumeResponse, error) {
	volumeID := req.GetVolumeId()
	if volumeID == "" {
		return nil, status.Error(codes.InvalidArgument, "volume ID is required")
	}

	if err := s.coordinator.RequestCleanup(ctx, volumeID); err != nil {
		s.logger.Warn().Err(err).Str("volume_id", volumeID).
			Msg("Failed to request cleanup, node data may be left behind")
	}

	return &csi.DeleteVolumeResponse{}, nil
}

// ValidateVolumeCapabilities confirms mount access; block volumes are not
// supported
func (s *ControllerServer) ValidateVolumeCapabilities(ctx context.Context, req *csi.ValidateVolumeCapabilitiesRequest) (*csi.ValidateVolumeCapabilitiesResponse, error) {
	if req.GetVolumeId() == "" {
		return nil, status.Error(codes.InvalidArgument, "volume ID is required")
	}
	if len(req.GetVolumeCapabilities()) == 0 {
		return nil, status.Error(codes.InvalidArgument, "volume capabilities are required")
	}

	if err := validateCapabilities(req.GetVolumeCapabilities()); err != nil {
		// Unsupported capabilities: respond without a confirmation
		return &csi.ValidateVolumeCapabilitiesResponse{}, nil
	}

	return &csi.ValidateVolumeCapabilitiesResponse{
		Confirmed: &csi.ValidateVolumeCapabilitiesResponse_Confirmed{
			VolumeCapabilities: req.GetVolumeCapabilities(),
		},
	}, nil
}

// ControllerGetCapabilities advertises create/delete support
func (s *ControllerServer) ControllerGetCapabilities(ctx context.Context, req *csi.ControllerGetCapabilitiesRequest) (*csi.ControllerGetCapabilitiesResponse, error) {
	return &csi.ControllerGetCapabilitiesResponse{
		Capabilities: []*csi.ControllerServiceCapability{
			{
				Type: &csi.ControllerServiceCapability_Rpc{
					Rpc: &csi.ControllerServiceCapability_RPC{
						Type: csi.ControllerServiceCapability_RPC_CREATE_DELETE_VOLUME,
					},
				},
			},
		},
	}, nil
}

func validateCapabilities(caps []*csi.VolumeCapability) error {
	for _, c := range caps {
		if c.GetBlock() != nil {
			return status.Error(codes.InvalidArgument, "block volumes are not supported")
		}
		if c.GetMount() == nil {
			return status.Error(codes.InvalidArgument, "mount access type is required")
		}
	}
	return nil
}
