package calls

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const subdomainOffset = 2

// RequestOptions carries what the router knows about a request and the
// request itself does not.
type RequestOptions struct {
	// ClientIP is the resolved client address (after trusted proxy handling).
	ClientIP string
	// Route is the matched route pattern, e.g. /api/v1/webhook/:service.
	Route string
	// BaseURL is the prefix the router is mounted on; empty at the top level.
	BaseURL string
	// TrustProxy enables X-Forwarded-{For,Proto,Host}.
	TrustProxy bool
}

// Request is a transport snapshot of an inbound call, taken while the
// request is still live. It holds no references to the original request.
type Request struct {
	Method       string
	RequestURI   string
	Path         string
	BaseURL      string
	Route        string
	Header       http.Header
	Query        url.Values
	Body         Body
	ClientIP     string
	ForwardedFor []string
	Protocol     string
	Hostname     string
	ProtoMajor   int
	ProtoMinor   int
	LocalAddr    string
	RemoteAddr   string
}

// ReadRequest consumes r.Body and snapshots everything Capture needs.
func ReadRequest(r *http.Request, opts RequestOptions) (Request, error) {
	var raw []byte
	if r.Body != nil {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return Request{}, fmt.Errorf("read body: %w", err)
		}
		raw = b
	}

	req := Request{
		Method:     r.Method,
		RequestURI: r.URL.RequestURI(),
		Path:       r.URL.Path,
		BaseURL:    opts.BaseURL,
		Route:      opts.Route,
		Header:     receivedHeader(r),
		Query:      r.URL.Query(),
		Body:       ParseBody(r.Header.Get("Content-Type"), raw),
		ClientIP:   opts.ClientIP,
		Protocol:   "http",
		Hostname:   stripPort(r.Host),
		ProtoMajor: r.ProtoMajor,
		ProtoMinor: r.ProtoMinor,
		RemoteAddr: r.RemoteAddr,
	}
	if r.TLS != nil {
		req.Protocol = "https"
	}
	if addr, ok := r.Context().Value(http.LocalAddrContextKey).(net.Addr); ok && addr != nil {
		req.LocalAddr = addr.String()
	}

	if opts.TrustProxy {
		req.ForwardedFor = splitList(r.Header.Values("X-Forwarded-For"))
		if proto := firstOf(r.Header.Get("X-Forwarded-Proto")); proto != "" {
			req.Protocol = strings.ToLower(proto)
		}
		if host := firstOf(r.Header.Get("X-Forwarded-Host")); host != "" {
			req.Hostname = stripPort(host)
		}
	}
	if req.ClientIP == "" {
		req.ClientIP = stripPort(r.RemoteAddr)
	}
	return req, nil
}

// Capture shapes a snapshot into a Record. It performs no I/O; ID is left
// for the store to assign.
func Capture(service string, req Request, now time.Time) Record {
	localHost, localPort := splitHostPort(req.LocalAddr)
	remoteHost, remotePort := splitHostPort(req.RemoteAddr)

	ips := req.ForwardedFor
	if ips == nil {
		ips = []string{}
	}

	return Record{
		Service:     service,
		OriginalURL: req.RequestURI,
		Path:        req.Path,
		BaseURL:     req.BaseURL,
		IP:          req.ClientIP,
		IPs:         append([]string{}, ips...),
		Headers:     HeaderFields(req.Header),
		Query:       QueryFields(req.Query),
		Body:        req.Body,
		MoreInfo: MoreInfo{
			Protocol:   req.Protocol,
			Hostname:   req.Hostname,
			Method:     req.Method,
			Subdomains: subdomains(req.Hostname),
			XHR:        strings.EqualFold(req.Header.Get("X-Requested-With"), "XMLHttpRequest"),
			// No response validators exist yet at capture time, so a request
			// can never be fresh.
			Fresh:  false,
			Stale:  true,
			Secure: req.Protocol == "https",
			Socket: Socket{
				LocalAddress:  localHost,
				LocalPort:     localPort,
				RemoteAddress: remoteHost,
				RemoteFamily:  addressFamily(remoteHost),
				RemotePort:    remotePort,
			},
			Version: fmt.Sprintf("%d.%d", req.ProtoMajor, req.ProtoMinor),
			Route:   req.Route,
		},
		CreatedAt: now.UTC(),
	}
}

// receivedHeader copies r's headers and puts back Host, which net/http
// moves out of the header map onto r.Host.
func receivedHeader(r *http.Request) http.Header {
	h := r.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	if r.Host != "" && h.Get("Host") == "" {
		h.Set("Host", r.Host)
	}
	return h
}

func subdomains(hostname string) []string {
	out := []string{}
	if hostname == "" || net.ParseIP(hostname) != nil {
		return out
	}
	parts := strings.Split(hostname, ".")
	for i := len(parts) - 1 - subdomainOffset; i >= 0; i-- {
		out = append(out, parts[i])
	}
	return out
}

func addressFamily(host string) string {
	ip := net.ParseIP(host)
	switch {
	case ip == nil:
		return ""
	case ip.To4() != nil:
		return "IPv4"
	default:
		return "IPv6"
	}
}

func splitHostPort(addr string) (string, int) {
	if addr == "" {
		return "", 0
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0
	}
	n, _ := strconv.Atoi(port)
	return host, n
}

func stripPort(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return strings.Trim(hostport, "[]")
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func firstOf(v string) string {
	return strings.TrimSpace(strings.Split(v, ",")[0])
}
