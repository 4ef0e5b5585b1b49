package service

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/meshledger/meshledger/node"
)

// Service exposes the node's read-only status API: current stats, peer
// connectivity, individual chain blocks, and the file catalog.
type Service struct {
	sync.Mutex

	bindAddress string
	node        *node.Node
	logger      *logrus.Entry
}

// NewService wraps a running Node with an HTTP status API bound to
// bindAddress.
func NewService(bindAddress string, n *node.Node, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

// registerHandlers registers the API handlers with the DefaultServeMux of
// the http package. It is possible that another server in the same process
// is simultaneously using the DefaultServeMux, in which case the handlers
// will be accessible from both.
func (s *Service) registerHandlers() {
	s.logger.Debug("registering status API handlers")
	http.HandleFunc("/stats", s.makeHandler(s.GetStats))
	http.HandleFunc("/peers", s.makeHandler(s.GetPeers))
	http.HandleFunc("/chain/", s.makeHandler(s.GetChainBlock))
	http.HandleFunc("/files", s.makeHandler(s.GetFiles))
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("serving status API")

	if err := http.ListenAndServe(s.bindAddress, nil); err != nil {
		s.logger.Error(err)
	}
}

// GetStats reports the node's current status snapshot.
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := s.node.Stats()

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(stats)
}

// GetChainBlock returns the block at /chain/{index}.
func (s *Service) GetChainBlock(w http.ResponseWriter, r *http.Request) {
	param := strings.TrimPrefix(r.URL.Path, "/chain/")

	index, err := strconv.ParseUint(param, 10, 64)
	if err != nil {
		s.logger.WithError(err).Errorf("parsing chain index parameter %s", param)

		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	block, ok := s.node.Chain(index)
	if !ok {
		http.Error(w, "block not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(block)
}

// GetPeers reports every connected and whitelisted peer.
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(s.node.Peers())
}

// GetFiles returns the local catalog and every known remote offer.
func (s *Service) GetFiles(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(struct {
		Local  interface{} `json:"local"`
		Offers interface{} `json:"offers"`
	}{
		Local:  s.node.Files(),
		Offers: s.node.Offers(),
	})
}
