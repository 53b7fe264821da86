package geo_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/flaggy/internal/adapters/geo"
)

func TestDetector(t *testing.T) {
	Convey("Given a lookup service", t, func() {
		var (
			calls atomic.Int32
			fail  atomic.Bool
			path  atomic.Value
		)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			path.Store(r.URL.Path)
			if fail.Load() {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			_, _ = w.Write([]byte(`{"status":"success","countryCode":"gb"}`))
		}))
		defer srv.Close()

		now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		d := geo.NewDetector(geo.WithBaseURL(srv.URL), geo.WithNow(func() time.Time { return now }))
		ctx := context.Background()

		Convey("When an address is resolved", func() {
			code := d.Country(ctx, "81.2.69.142")

			Convey("Then the code is upper-cased", func() {
				So(code, ShouldEqual, "GB")
				So(path.Load(), ShouldEqual, "/json/81.2.69.142")
			})

			Convey("And repeated lookups within a day are cached", func() {
				now = now.Add(23 * time.Hour)
				So(d.Country(ctx, "81.2.69.142"), ShouldEqual, "GB")
				So(calls.Load(), ShouldEqual, 1)
			})

			Convey("And a failing refresh falls back to the cached code", func() {
				now = now.Add(25 * time.Hour)
				fail.Store(true)
				So(d.Country(ctx, "81.2.69.142"), ShouldEqual, "GB")
				So(calls.Load(), ShouldEqual, 2)
			})
		})

		Convey("When the first lookup fails", func() {
			fail.Store(true)

			Convey("Then the default country is used", func() {
				So(d.Country(ctx, "81.2.69.142"), ShouldEqual, geo.DefaultCountry)
			})
		})
	})

	Convey("Given a service that reports failure in the body", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"status":"fail","message":"reserved range"}`))
		}))
		defer srv.Close()
		d := geo.NewDetector(geo.WithBaseURL(srv.URL), geo.WithDefault("gb"))

		Convey("Then the configured default is returned", func() {
			So(d.Default(), ShouldEqual, "GB")
			So(d.Country(context.Background(), "10.0.0.1"), ShouldEqual, "GB")
		})
	})
}

func TestDetectorBounds(t *testing.T) {
	Convey("Given a detector remembering at most three addresses", t, func() {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			_, _ = w.Write([]byte(`{"status":"success","countryCode":"de"}`))
		}))
		defer srv.Close()
		d := geo.NewDetector(geo.WithBaseURL(srv.URL), geo.WithCacheSize(3))
		ctx := context.Background()

		Convey("When many distinct addresses are resolved", func() {
			for i := 1; i <= 50; i++ {
				d.Country(ctx, fmt.Sprintf("203.0.113.%d", i))
			}

			Convey("Then the cache never grows past its cap", func() {
				So(d.Cached(), ShouldEqual, 3)
				So(calls.Load(), ShouldEqual, 50)
			})

			Convey("And the most recent addresses are still served from memory", func() {
				So(d.Country(ctx, "203.0.113.50"), ShouldEqual, "DE")
				So(calls.Load(), ShouldEqual, 50)
				d.Country(ctx, "203.0.113.1")
				So(calls.Load(), ShouldEqual, 51)
			})
		})
	})

	Convey("Given a successful lookup without a country code", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"status":"success"}`))
		}))
		defer srv.Close()
		d := geo.NewDetector(geo.WithBaseURL(srv.URL))

		Convey("Then the address is credited to US rather than the default", func() {
			So(d.Country(context.Background(), "203.0.113.77"), ShouldEqual, "US")
		})
	})
}

func TestClientIP(t *testing.T) {
	Convey("Given requests arriving directly", t, func() {
		r := httptest.NewRequest(http.MethodGet, "/geo", nil)
		r.RemoteAddr = "198.51.100.4:5555"

		Convey("Then the remote address is used without its port", func() {
			So(geo.ClientIP(r), ShouldEqual, "198.51.100.4")
		})

		Convey("Then spoofed forwarding headers are ignored", func() {
			r.Header.Set("X-Forwarded-For", "203.0.113.9")
			r.Header.Set("X-Real-IP", "203.0.113.10")
			So(geo.ClientIP(r), ShouldEqual, "198.51.100.4")
		})

		Convey("Then local addresses are left to the service", func() {
			r.RemoteAddr = "127.0.0.1:1234"
			So(geo.ClientIP(r), ShouldEqual, "")
			r.RemoteAddr = "[::1]:1234"
			So(geo.ClientIP(r), ShouldEqual, "")
		})
	})

	Convey("Given a trusted proxy range", t, func() {
		proxies, err := geo.ParseProxies("10.0.0.0/8, 192.0.2.10")
		So(err, ShouldBeNil)
		r := httptest.NewRequest(http.MethodGet, "/geo", nil)

		Convey("When the peer is a trusted proxy", func() {
			r.RemoteAddr = "10.1.2.3:4000"
			r.Header.Set("X-Forwarded-For", "198.51.100.1, 203.0.113.9, 192.0.2.10")

			Convey("Then the first untrusted hop from the right wins", func() {
				So(proxies.ClientIP(r), ShouldEqual, "203.0.113.9")
			})
		})

		Convey("When a trusted proxy only sets X-Real-IP", func() {
			r.RemoteAddr = "192.0.2.10:4000"
			r.Header.Set("X-Real-IP", "203.0.113.20")
			So(proxies.ClientIP(r), ShouldEqual, "203.0.113.20")
		})

		Convey("When the peer is not trusted", func() {
			r.RemoteAddr = "198.51.100.4:5555"
			r.Header.Set("X-Forwarded-For", "203.0.113.9")
			So(proxies.ClientIP(r), ShouldEqual, "198.51.100.4")
		})
	})

	Convey("Given a malformed proxy list", t, func() {
		_, err := geo.ParseProxies("10.0.0.0/99")
		So(err, ShouldNotBeNil)
		_, err = geo.ParseProxies("not-an-ip")
		So(err, ShouldNotBeNil)
	})
}
