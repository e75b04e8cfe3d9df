package server

import (
	"net"
	"strings"

	"github.com/valyala/fasthttp"

	"yqhp/hookd/internal/model"
)

// Snapshot captures the parts of req recorded in a status record. Header
// names are lower-cased; repeated headers are joined with ", ".
func Snapshot(req *fasthttp.Request, peer net.Addr) model.Request {
	headers := make(map[string]string)
	req.Header.VisitAll(func(key, value []byte) {
		k := strings.ToLower(string(key))
		if prev, ok := headers[k]; ok {
			headers[k] = prev + ", " + string(value)
			return
		}
		headers[k] = string(value)
	})

	snap := model.Request{
		URI:     string(req.RequestURI()),
		Method:  string(req.Header.Method()),
		Version: string(req.Header.Protocol()),
		Headers: headers,
	}
	if peer != nil {
		addr := peer.String()
		snap.PeerAddr = &addr
	}
	return snap
}
