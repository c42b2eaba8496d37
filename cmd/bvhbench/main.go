// Command bvhbench builds a Hierarchy over a synthetic triangle soup and
// prints its BuildStats and wall-clock time. It is a demonstrator for the
// pkg/bvh API, not part of it.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"runtime/pprof"
	"time"

	"go.uber.org/zap"

	"github.com/Herdi2/GPU-Raytracer/pkg/bvh"
	"github.com/Herdi2/GPU-Raytracer/pkg/core"
)

// Config holds all the configuration for a single bench run.
type Config struct {
	Soup       string
	Count      int
	BVHType    string
	Optimize   bool
	Seed       int64
	Verbose    bool
	Help       bool
	CPUProfile string
}

func main() {
	config := parseFlags()
	if config.Help {
		showHelp()
		return
	}

	if config.CPUProfile != "" {
		f, err := os.Create(config.CPUProfile)
		if err != nil {
			fmt.Printf("Could not create CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Printf("Could not start CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	bvhType, err := parseBVHType(config.BVHType)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	triangles, err := createSoup(config.Soup, config.Count, config.Seed)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	cfg := core.DefaultConfig()
	cfg.BVHType = bvhType
	cfg.EnableBVHOptimization = config.Optimize
	cfg.Seed = config.Seed

	var logger *zap.Logger
	if config.Verbose {
		logger, err = zap.NewDevelopment()
		if err != nil {
			fmt.Printf("Could not create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
	}

	fmt.Printf("Building %s over %d triangles (soup=%s, optimize=%v)...\n", bvhType, len(triangles), config.Soup, config.Optimize)
	start := time.Now()
	h, indices, stats, err := bvh.Build(context.Background(), triangles, cfg, logger)
	elapsed := time.Since(start)
	if err != nil {
		fmt.Printf("Build failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Build completed in %v\n", elapsed)
	fmt.Printf("Nodes: %d  Leaves: %d  Avg branching: %.2f\n", stats.NodeCount, stats.LeafCount, stats.AvgBranchingFactor)
	fmt.Printf("Object splits: %d  Spatial splits: %d\n", stats.ObjectSplits, stats.SpatialSplits)
	fmt.Printf("Triangle index slots: %d (duplication ratio %.3f)\n", len(indices), float64(len(indices))/float64(len(triangles)))
	if len(stats.DegenerateTriangles) > 0 {
		fmt.Printf("Degenerate triangles flagged: %d\n", len(stats.DegenerateTriangles))
	}
	if stats.BudgetExceeded != nil {
		fmt.Printf("Optimizer budget exceeded: %v\n", stats.BudgetExceeded)
	}
	fmt.Printf("Hierarchy shape: binary=%v wide4=%v wide8=%v\n", h.Binary != nil, h.Wide4 != nil, h.Wide8 != nil)
}

// parseFlags parses command line flags and returns configuration.
func parseFlags() Config {
	config := Config{}
	flag.StringVar(&config.Soup, "soup", "random", "Triangle soup: 'random', 'grid', or 'degenerate'")
	flag.IntVar(&config.Count, "count", 10000, "Number of triangles to generate")
	flag.StringVar(&config.BVHType, "bvh-type", "bvh8", "BVH type: bvh, sbvh, bvh4, sbvh4, bvh8, sbvh8")
	flag.BoolVar(&config.Optimize, "optimize", false, "Run the reinsertion optimizer after the initial build")
	flag.Int64Var(&config.Seed, "seed", 1, "RNG seed for the soup and the optimizer")
	flag.BoolVar(&config.Verbose, "verbose", false, "Log each build stage")
	flag.BoolVar(&config.Help, "help", false, "Show help information")
	flag.StringVar(&config.CPUProfile, "cpuprofile", "", "Write CPU profile to file")
	flag.Parse()
	return config
}

func showHelp() {
	fmt.Println("bvhbench")
	fmt.Println("Usage: bvhbench [options]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Soups:")
	fmt.Println("  random      - uniformly random small triangles in the unit cube")
	fmt.Println("  grid        - a regular 3D grid of triangles (good SAH splits)")
	fmt.Println("  degenerate  - a soup with a share of zero-area triangles mixed in")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  bvhbench --soup=random --count=100000 --bvh-type=sbvh8")
	fmt.Println("  bvhbench --soup=grid --count=8000 --bvh-type=bvh4 --optimize")
}

func parseBVHType(s string) (core.BVHType, error) {
	switch s {
	case "bvh":
		return core.BVH, nil
	case "sbvh":
		return core.SBVH, nil
	case "bvh4":
		return core.BVH4, nil
	case "sbvh4":
		return core.SBVH4, nil
	case "bvh8":
		return core.BVH8, nil
	case "sbvh8":
		return core.SBVH8, nil
	default:
		return 0, fmt.Errorf("unknown bvh-type: %s", s)
	}
}

func createSoup(kind string, count int, seed int64) ([]core.Triangle, error) {
	r := rand.New(rand.NewSource(seed))
	switch kind {
	case "random":
		return randomSoup(r, count), nil
	case "grid":
		return gridSoup(count), nil
	case "degenerate":
		return degenerateSoup(r, count), nil
	default:
		return nil, fmt.Errorf("unknown soup: %s", kind)
	}
}

func randomSoup(r *rand.Rand, count int) []core.Triangle {
	triangles := make([]core.Triangle, 0, count)
	for i := 0; i < count; i++ {
		base := core.NewVec3(r.Float64(), r.Float64(), r.Float64())
		triangles = append(triangles, core.NewTriangle(
			base,
			base.Add(core.NewVec3(0.01*r.Float64(), 0, 0)),
			base.Add(core.NewVec3(0, 0.01*r.Float64(), 0)),
		))
	}
	return triangles
}

func gridSoup(count int) []core.Triangle {
	side := 1
	for side*side*side < count {
		side++
	}
	triangles := make([]core.Triangle, 0, count)
	step := 1.0 / float64(side)
	for x := 0; x < side && len(triangles) < count; x++ {
		for y := 0; y < side && len(triangles) < count; y++ {
			for z := 0; z < side && len(triangles) < count; z++ {
				base := core.NewVec3(float64(x)*step, float64(y)*step, float64(z)*step)
				triangles = append(triangles, core.NewTriangle(
					base,
					base.Add(core.NewVec3(step*0.5, 0, 0)),
					base.Add(core.NewVec3(0, step*0.5, 0)),
				))
			}
		}
	}
	return triangles
}

func degenerateSoup(r *rand.Rand, count int) []core.Triangle {
	triangles := randomSoup(r, count)
	for i := 0; i < count/10; i++ {
		idx := r.Intn(len(triangles))
		v0 := triangles[idx].V0
		triangles[idx] = core.NewTriangle(v0, v0, v0)
	}
	return triangles
}
