package clustertest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/lightbitslabs/lightos-driver/pkg/types"
)

// Defaults reported by a fresh fake cluster.
const (
	ClusterUUID  = "926e6df8-73e1-11ec-a624-07ba3880f6cc"
	SubsystemNQN = "nqn.2014-08.org.nvmexpress:NVMf:uuid:f4a89ce0-9fc2-4900-bfa3-00ad27995e7b"
)

// DefaultNodes is the membership a fresh fake cluster reports.
var DefaultNodes = []*types.Node{
	{UUID: "926e6df8-73e1-11ec-a624-000000000001", NVMeEndpoint: "192.168.75.10:4420"},
	{UUID: "926e6df8-73e1-11ec-a624-000000000002", NVMeEndpoint: "192.168.75.11:4420"},
	{UUID: "926e6df8-73e1-11ec-a624-000000000003", NVMeEndpoint: "192.168.75.12:4420"},
}

type project struct {
	volumes   map[string]*types.Volume   // keyed by UUID
	snapshots map[string]*types.Snapshot // keyed by UUID
}

// Server is an in-memory fake of the cluster API, for tests. It enforces
// the cluster-side contract the driver depends on: (project, name)
// uniqueness answered with 409, UUIDs assigned at creation, fingerprint
// recompute on every mutation, and 400 on a stale If-Match.
type Server struct {
	mu       sync.Mutex
	projects map[string]*project

	httpSrv *httptest.Server

	// VolumeCreateState is the lifecycle state newly created volumes
	// land in. Defaults to Available; set to Failed to exercise the
	// compensating-delete path.
	VolumeCreateState types.VolumeState

	// SnapshotCreateState mirrors VolumeCreateState for snapshots.
	SnapshotCreateState types.SnapshotState

	// RejectAuth makes every request fail with 401.
	RejectAuth bool

	// Nodes is the reported cluster membership.
	Nodes []*types.Node

	// Info is the reported cluster identity.
	Info types.ClusterInfo
}

// NewServer starts a TLS fake cluster. Callers must Close it.
func NewServer() *Server {
	s := &Server{
		projects:            map[string]*project{types.DefaultProject: newProject()},
		VolumeCreateState:   types.VolumeStateAvailable,
		SnapshotCreateState: types.SnapshotStateAvailable,
		Nodes:               DefaultNodes,
		Info:                types.ClusterInfo{UUID: ClusterUUID, SubsystemNQN: SubsystemNQN},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v2/clusterinfo", s.handleClusterInfo)
	mux.HandleFunc("GET /api/v2/nodes", s.handleListNodes)
	mux.HandleFunc("GET /api/v2/nodes/{uuid}", s.handleGetNode)
	mux.HandleFunc("POST /api/v2/projects/{project}/volumes", s.handleCreateVolume)
	mux.HandleFunc("GET /api/v2/projects/{project}/volumes", s.handleGetVolumeByName)
	mux.HandleFunc("GET /api/v2/projects/{project}/volumes/{uuid}", s.handleGetVolume)
	mux.HandleFunc("PUT /api/v2/projects/{project}/volumes/{uuid}", s.handleUpdateVolume)
	mux.HandleFunc("DELETE /api/v2/projects/{project}/volumes/{uuid}", s.handleDeleteVolume)
	mux.HandleFunc("POST /api/v2/projects/{project}/snapshots", s.handleCreateSnapshot)
	mux.HandleFunc("GET /api/v2/projects/{project}/snapshots", s.handleGetSnapshotByName)
	mux.HandleFunc("GET /api/v2/projects/{project}/snapshots/{uuid}", s.handleGetSnapshot)
	mux.HandleFunc("DELETE /api/v2/projects/{project}/snapshots/{uuid}", s.handleDeleteSnapshot)

	s.httpSrv = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.RejectAuth {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	return s
}

func newProject() *project {
	return &project{
		volumes:   make(map[string]*types.Volume),
		snapshots: make(map[string]*types.Snapshot),
	}
}

// Close shuts the fake cluster down.
func (s *Server) Close() {
	s.httpSrv.Close()
}

// Endpoint returns the host:port the fake cluster listens on.
func (s *Server) Endpoint() (host string, port int) {
	u, err := url.Parse(s.httpSrv.URL)
	if err != nil {
		panic(err)
	}
	n, err := strconv.Atoi(u.Port())
	if err != nil {
		panic(err)
	}
	return u.Hostname(), n
}

// Volumes returns a snapshot of the volumes in a project.
func (s *Server) Volumes(projectName string) []*types.Volume {
	s.mu.Lock()
	defer s.mu.Unlock()

	proj, ok := s.projects[projectName]
	if !ok {
		return nil
	}
	out := make([]*types.Volume, 0, len(proj.volumes))
	for _, v := range proj.volumes {
		cp := *v
		out = append(out, &cp)
	}
	return out
}

// Snapshots returns a snapshot of the snapshots in a project.
func (s *Server) Snapshots(projectName string) []*types.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	proj, ok := s.projects[projectName]
	if !ok {
		return nil
	}
	out := make([]*types.Snapshot, 0, len(proj.snapshots))
	for _, snap := range proj.snapshots {
		cp := *snap
		out = append(out, &cp)
	}
	return out
}

// SetVolumeState overrides the state of an existing volume, recomputing
// its fingerprint as the cluster would.
func (s *Server) SetVolumeState(projectName, name string, state types.VolumeState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	proj, ok := s.projects[projectName]
	if !ok {
		return
	}
	for _, v := range proj.volumes {
		if v.Name == name {
			v.State = state
			v.ETag = types.ComputeVolumeETag(v)
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func (s *Server) handleClusterInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Info)
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"nodes": s.Nodes})
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("uuid")
	for _, n := range s.Nodes {
		if n.UUID == id {
			writeJSON(w, http.StatusOK, n)
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (s *Server) getOrCreateProject(name string) *project {
	proj, ok := s.projects[name]
	if !ok {
		proj = newProject()
		s.projects[name] = proj
	}
	return proj
}

func (s *Server) handleCreateVolume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name            string    `json:"name"`
		Size            int64     `json:"size"`
		NumReplicas     int       `json:"n_replicas"`
		Compression     bool      `json:"compression"`
		SrcSnapshotName string    `json:"src_snapshot_name"`
		ACL             types.ACL `json:"acl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	proj := s.getOrCreateProject(r.PathValue("project"))
	for _, v := range proj.volumes {
		if v.Name == req.Name {
			w.WriteHeader(http.StatusConflict)
			return
		}
	}

	vol := &types.Volume{
		UUID:            uuid.New().String(),
		ProjectName:     r.PathValue("project"),
		Name:            req.Name,
		Size:            req.Size,
		NumReplicas:     req.NumReplicas,
		Compression:     req.Compression,
		SrcSnapshotName: req.SrcSnapshotName,
		ACL:             req.ACL,
		State:           s.VolumeCreateState,
	}
	vol.ETag = types.ComputeVolumeETag(vol)
	proj.volumes[vol.UUID] = vol
	writeJSON(w, http.StatusOK, vol)
}

func (s *Server) handleGetVolumeByName(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")

	s.mu.Lock()
	defer s.mu.Unlock()

	proj, ok := s.projects[r.PathValue("project")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	for _, v := range proj.volumes {
		if v.Name == name {
			writeJSON(w, http.StatusOK, v)
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (s *Server) handleGetVolume(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	proj, ok := s.projects[r.PathValue("project")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if v, ok := proj.volumes[r.PathValue("uuid")]; ok {
		writeJSON(w, http.StatusOK, v)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (s *Server) handleUpdateVolume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Size *int64     `json:"size"`
		ACL  *types.ACL `json:"acl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	proj, ok := s.projects[r.PathValue("project")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	vol, ok := proj.volumes[r.PathValue("uuid")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if match := r.Header.Get("If-Match"); match != "" && match != vol.ETag {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if req.Size != nil {
		vol.Size = *req.Size
	}
	if req.ACL != nil {
		vol.ACL = *req.ACL
	}
	vol.ETag = types.ComputeVolumeETag(vol)
	writeJSON(w, http.StatusOK, vol)
}

func (s *Server) handleDeleteVolume(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	proj, ok := s.projects[r.PathValue("project")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	vol, ok := proj.volumes[r.PathValue("uuid")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	delete(proj.volumes, vol.UUID)
	writeJSON(w, http.StatusOK, vol)
}

func (s *Server) handleCreateSnapshot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string `json:"name"`
		SrcVolumeName string `json:"src_volume_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	proj := s.getOrCreateProject(r.PathValue("project"))
	for _, snap := range proj.snapshots {
		if snap.Name == req.Name {
			w.WriteHeader(http.StatusConflict)
			return
		}
	}

	snap := &types.Snapshot{
		UUID:          uuid.New().String(),
		ProjectName:   r.PathValue("project"),
		Name:          req.Name,
		SrcVolumeName: req.SrcVolumeName,
		State:         s.SnapshotCreateState,
	}
	proj.snapshots[snap.UUID] = snap
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleGetSnapshotByName(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")

	s.mu.Lock()
	defer s.mu.Unlock()

	proj, ok := s.projects[r.PathValue("project")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	for _, snap := range proj.snapshots {
		if snap.Name == name {
			writeJSON(w, http.StatusOK, snap)
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	proj, ok := s.projects[r.PathValue("project")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if snap, ok := proj.snapshots[r.PathValue("uuid")]; ok {
		writeJSON(w, http.StatusOK, snap)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (s *Server) handleDeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	proj, ok := s.projects[r.PathValue("project")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	snap, ok := proj.snapshots[r.PathValue("uuid")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	delete(proj.snapshots, snap.UUID)
	writeJSON(w, http.StatusOK, snap)
}
