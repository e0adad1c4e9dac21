package store

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/thraxil/randwalk"
	"github.com/thraxil/resize"

	"github.com/thraxil/imgsource/source"
)

// Result summarizes one pass over the store.
type Result struct {
	Verified  int
	Corrupted []string
	Failed    []string
}

// Verifier re-reads every full-size image in the store through a Source
// and checks that its bytes still hash to the address it is filed under.
type Verifier struct {
	root   string
	src    source.Source
	logger log.Logger

	verified  prometheus.Counter
	corrupted prometheus.Counter
	passes    prometheus.Counter
}

func NewVerifier(root string, src source.Source, logger log.Logger, reg prometheus.Registerer) (*Verifier, error) {
	v := &Verifier{
		root:   root,
		src:    src,
		logger: logger,
		verified: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imgsource", Name: "verified_images_total",
			Help: "Stored images whose content matched their hash.",
		}),
		corrupted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imgsource", Name: "corrupted_images_total",
			Help: "Stored images whose content did not match their hash.",
		}),
		passes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imgsource", Name: "verifier_passes_total",
			Help: "Completed passes over the store.",
		}),
	}
	for _, c := range []prometheus.Collector{v.verified, v.corrupted, v.passes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Pass walks the store once, in random order.
func (v *Verifier) Pass(ctx context.Context) (Result, error) {
	var res Result
	err := randwalk.Walk(v.root, func(path string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			_ = v.logger.Log("level", "WARN", "msg", "walk error", "path", path, "error", err.Error())
			return nil
		}
		if info.IsDir() || basename(path) != "full" {
			return nil
		}
		v.visit(ctx, path, &res)
		return nil
	})
	v.passes.Inc()
	return res, err
}

func (v *Verifier) visit(ctx context.Context, path string, res *Result) {
	hs, err := HashStringFromPath(path)
	if err != nil {
		// not something we put there
		return
	}
	ahash, err := HashFromString(hs, "")
	if err != nil {
		return
	}
	spec := Specifier{Hash: ahash, Size: resize.MakeSizeSpec("full"), Extension: filepath.Ext(path)}
	actual, err := v.check(ctx, spec)
	if err != nil {
		_ = v.logger.Log("level", "ERR", "msg", "could not verify image", "image", path, "error", err.Error())
		res.Failed = append(res.Failed, path)
		return
	}
	if actual.String() != ahash.String() {
		_ = v.logger.Log("level", "WARN", "msg", "image appears to be corrupted!", "image", path,
			"actual", actual.String())
		v.corrupted.Inc()
		res.Corrupted = append(res.Corrupted, path)
		return
	}
	v.verified.Inc()
	res.Verified++
}

func (v *Verifier) check(ctx context.Context, spec Specifier) (*Hash, error) {
	rc, ok, err := v.src.Open(ctx, spec.URL())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no stream for %s", spec)
	}
	defer rc.Close()
	return HashOf(rc)
}

// Run calls Pass every interval, plus a few seconds of jitter so a fleet
// does not verify in lockstep, until ctx is done.
func (v *Verifier) Run(ctx context.Context, interval time.Duration) {
	_ = v.logger.Log("level", "INFO", "msg", "starting verifier", "root", v.root)
	for ctx.Err() == nil {
		jitter := time.Duration(rand.Intn(5)) * time.Second
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval + jitter):
		}
		t0 := time.Now()
		res, err := v.Pass(ctx)
		if err != nil {
			_ = v.logger.Log("level", "WARN", "msg", "verifier pass ended early", "error", err.Error())
		}
		_ = v.logger.Log("level", "INFO", "msg", "verifier pass finished",
			"verified", res.Verified, "corrupted", len(res.Corrupted), "failed", len(res.Failed),
			"time", time.Since(t0))
	}
}

// part of the path that's not a directory or extension
func basename(path string) string {
	filename := filepath.Base(path)
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}
