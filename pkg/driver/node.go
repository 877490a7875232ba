package driver

import (
	"context"
	"os"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nlcache/nlcache/pkg/cleanup"
	"github.com/nlcache/nlcache/pkg/log"
	"github.com/nlcache/nlcache/pkg/volume"
)

// NodeServer implements the CSI node service. Publishing a volume creates
// its local directory under the cache root and bind-mounts it into the
// workload's target path; the node also registers itself on the volume's
// state record so the cleanup protocol knows this node holds data.
type NodeServer struct {
	csi.UnimplementedNodeServer

	local       *volume.LocalDriver
	coordinator *cleanup.Coordinator
	nodeName    string
	mounts      mounter
	logger      zerolog.Logger
}

// mounter is the slice of pkg/volume mount operations the node service
// performs; tests substitute a fake since real mounts need privileges
type mounter interface {
	Mounted(target string) (bool, error)
	BindMount(source, target string) error
	RemountReadonly(target string) error
	Unmount(target string) error
}

type sysMounter struct{}

func (sysMounter) Mounted(target string) (bool, error)   { return volume.Mounted(target) }
func (sysMounter) BindMount(source, target string) error { return volume.BindMount(source, target) }
func (sysMounter) RemountReadonly(target string) error   { return volume.RemountReadonly(target) }
func (sysMounter) Unmount(target string) error           { return volume.Unmount(target) }

// NewNodeServer creates the node service
func NewNodeServer(local *volume.LocalDriver, coordinator *cleanup.Coordinator, nodeName string) *NodeServer {
	return &NodeServer{
		local:       local,
		coordinator: coordinator,
		nodeName:    nodeName,
		mounts:      sysMounter{},
		logger:      log.WithComponent("csi-node").With().Str("node", nodeName).Logger(),
	}
}

// NodePublishVolume bind-mounts the volume's local directory into the
// workload's target path, creating the directory on first publish
func (s *NodeServer) NodePublishVolume(ctx context.Context, req *csi.NodePublishVolumeRequest) (*csi.NodePublishVolumeResponse, error) {
	volumeID := req.GetVolumeId()
	targetPath := req.GetTargetPath()
	if volumeID == "" {
		return nil, status.Error(codes.InvalidArgument, "volume ID is required")
	}
	if targetPath == "" {
		return nil, status.Error(codes.InvalidArgument, "target path is required")
	}
	if !volume.ValidateID(volumeID) {
		return nil, status.Errorf(codes.InvalidArgument, "malformed volume ID %q", volumeID)
	}
	if vc := req.GetVolumeCapability(); vc != nil && vc.GetBlock() != nil {
		return nil, status.Error(codes.InvalidArgument, "block volumes are not supported")
	}

	source, err := s.local.Create(volumeID)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to create volume directory: %v", err)
	}
	if err := os.MkdirAll(targetPath, 0755); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to create target path: %v", err)
	}

	mounted, err := s.mounts.Mounted(targetPath)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to check target path: %v", err)
	}
	if !mounted {
		if err := s.mounts.BindMount(source, targetPath); err != nil {
			return nil, status.Errorf(codes.Internal, "failed to mount volume: %v", err)
		}
		// The read-only pass is best-effort: the bind mount is already live,
		// and a writable cache mount beats a failed publish
		if req.GetReadonly() {
			if err := s.mounts.RemountReadonly(targetPath); err != nil {
				s.logger.Warn().Err(err).Str("volume_id", volumeID).Str("target", targetPath).
					Msg("Failed to remount read-only, continuing with writable mount")
			}
		}
		s.logger.Info().Str("volume_id", volumeID).Str("target", targetPath).
			Bool("readonly", req.GetReadonly()).Msg("Published volume")
	}

	// Tracking registration is best-effort: the mount is already in place,
	// and failing the publish over a record-store hiccup would only make the
	// workload unschedulable
	if err := s.coordinator.RegisterPublish(ctx, volumeID, s.nodeName); err != nil {
		s.logger.Warn().Err(err).Str("volume_id", volumeID).
			Msg("Failed to register publish, volume is untracked on this node")
	}

	return &csi.NodePublishVolumeResponse{}, nil
}

// NodeUnpublishVolume unmounts the target path. The local directory is kept;
// it is deleted only by the cleanup protocol once the volume itself is
// deleted.
func (s *NodeServer) NodeUnpublishVolume(ctx context.Context, req *csi.NodeUnpublishVolumeRequest) (*csi.NodeUnpublishVolumeResponse, error) {
	volumeID := req.GetVolumeId()
	targetPath := req.GetTargetPath()
	if volumeID == "" {
		return nil, status.Error(codes.InvalidArgument, "volume ID is required")
	}
	if targetPath == "" {
		return nil, status.Error(codes.InvalidArgument, "target path is required")
	}

	if _, err := os.Stat(targetPath); os.IsNotExist(err) {
		return &csi.NodeUnpublishVolumeResponse{}, nil
	}

	mounted, err := s.mounts.Mounted(targetPath)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to check target path: %v", err)
	}
	if mounted {
		if err := s.mounts.Unmount(targetPath); err != nil {
			return nil, status.Errorf(codes.Internal, "failed to unmount volume: %v", err)
		}
	}

	if err := os.Remove(targetPath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn().Err(err).Str("target", targetPath).
			Msg("Failed to remove target path after unmount")
	}

	s.logger.Info().Str("volume_id", volumeID).Str("target", targetPath).
		Msg("Unpublished volume")
	return &csi.NodeUnpublishVolumeResponse{}, nil
}

// NodeGetInfo returns this node's name as its CSI node ID
func (s *NodeServer) NodeGetInfo(ctx context.Context, req *csi.NodeGetInfoRequest) (*csi.NodeGetInfoResponse, error) {
	return &csi.NodeGetInfoResponse{
		NodeId: s.nodeName,
	}, nil
}

// NodeGetCapabilities reports no optional capabilities; publishes go
// straight to the target path without a staging step
func (s *NodeServer) NodeGetCapabilities(ctx context.Context, req *csi.NodeGetCapabilitiesRequest) (*csi.NodeGetCapabilitiesResponse, error) {
	return &csi.NodeGetCapabilitiesResponse{}, nil
}
