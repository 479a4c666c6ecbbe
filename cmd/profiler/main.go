package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"web/graphview/render"
)

var (
	cpuprofile  = flag.String("cpuprofile", "", "write cpu profile to file")
	memprofile  = flag.String("memprofile", "", "write memory profile to file")
	heapprofile = flag.String("heapprofile", "", "write heap profile to file")
	numNodes    = flag.Int("nodes", 100000, "number of nodes to generate")
	numEdges    = flag.Int("edges", 150000, "number of edges to generate")
	zoomLevel   = flag.Float64("zoom", 0.8, "zoom factor to profile")
	frames      = flag.Int("frames", 100, "frames to render per configuration")
	configPath  = flag.String("config", "", "renderer options YAML file")
	testall     = flag.Bool("testall", false, "test all configurations")
)

var sceneBounds = render.Bounds{
	MinX: -4000.0,
	MinY: -3000.0,
	MaxX: 4000.0,
	MaxY: 3000.0,
}

func loadOptions() render.Options {
	if *configPath == "" {
		return render.DefaultOptions()
	}
	opts, err := render.LoadOptions(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not load options: %v\n", err)
		os.Exit(1)
	}
	return opts
}

// frameInput pans the viewport a little each frame so the profile covers
// index reuse, not just the first build.
func frameInput(scene *render.Scene, zoom float64, frame int) render.FrameInput {
	return render.FrameInput{
		Nodes: scene.Nodes,
		Edges: scene.Edges,
		Viewport: render.Viewport{
			Zoom:   zoom,
			Width:  1920,
			Height: 1080,
			PanX:   float64(frame) * 3.0,
			PanY:   float64(frame) * 1.5,
		},
	}
}

func runSingleProfile(opts render.Options, numNodes, numEdges int, zoom float64, frames int) {
	fmt.Printf("Profiling with %d nodes, %d edges at zoom %.2f\n", numNodes, numEdges, zoom)

	scene := render.GenerateTestScene(numNodes, numEdges, sceneBounds, 42)
	renderer, err := render.NewVirtualRenderer(opts, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not create renderer: %v\n", err)
		return
	}

	var memStatsBefore, memStatsAfter runtime.MemStats
	runtime.ReadMemStats(&memStatsBefore)

	start := time.Now()
	var lastPlan *render.RenderPlan
	for i := 0; i < frames; i++ {
		lastPlan = renderer.RenderFrame(frameInput(scene, zoom, i))
	}
	duration := time.Since(start)

	runtime.ReadMemStats(&memStatsAfter)
	allocMB := float64(memStatsAfter.TotalAlloc-memStatsBefore.TotalAlloc) / 1024 / 1024

	fmt.Printf("%d frames completed in %v (%.2f ms/frame)\n",
		frames, duration, float64(duration.Milliseconds())/float64(frames))
	fmt.Printf("Last frame: %d nodes, %d edges rendered\n",
		lastPlan.Stats.RenderedNodes, lastPlan.Stats.RenderedEdges)
	fmt.Printf("Memory allocated: %.2f MB\n", allocMB)
	fmt.Printf("Memory usage: %.2f MB\n", float64(memStatsAfter.Alloc)/1024/1024)
}

func runProfileBattery(opts render.Options, frames int) {
	nodeCounts := []int{1000, 10000, 50000, 100000}
	zoomLevels := []float64{0.05, 0.2, 0.5, 0.8, 1.5}

	fmt.Println("Running comprehensive profile battery...")
	fmt.Println("=======================================")

	fmt.Printf("%-10s | %-10s | %-12s | %-15s | %-12s | %-10s\n",
		"Nodes", "Zoom", "Rendered", "ms/frame", "Memory (MB)", "GC Runs")
	fmt.Printf("%s\n", "------------------------------------------------------------------------")

	for _, nodes := range nodeCounts {
		edges := nodes * 3 / 2
		scene := render.GenerateTestScene(nodes, edges, sceneBounds, 42)

		for _, zoom := range zoomLevels {
			renderer, err := render.NewVirtualRenderer(opts, nil)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Could not create renderer: %v\n", err)
				return
			}

			var memStatsBefore, memStatsAfter runtime.MemStats
			runtime.ReadMemStats(&memStatsBefore)

			start := time.Now()
			var lastPlan *render.RenderPlan
			for i := 0; i < frames; i++ {
				lastPlan = renderer.RenderFrame(frameInput(scene, zoom, i))
			}
			duration := time.Since(start)

			runtime.ReadMemStats(&memStatsAfter)
			memMB := float64(memStatsAfter.TotalAlloc-memStatsBefore.TotalAlloc) / 1024 / 1024
			gcRuns := memStatsAfter.NumGC - memStatsBefore.NumGC

			fmt.Printf("%-10d | %-10.2f | %-12d | %-15.2f | %-12.2f | %-10d\n",
				nodes, zoom, lastPlan.Stats.RenderedNodes,
				float64(duration.Microseconds())/float64(frames)/1000, memMB, gcRuns)
		}

		fmt.Printf("%s\n", "------------------------------------------------------------------------")
	}
}

func main() {
	flag.Parse()

	opts := loadOptions()

	// Set up CPU profiling if requested
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create CPU profile: %v\n", err)
			return
		}
		defer f.Close()

		fmt.Println("Starting CPU profiling...")
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Could not start CPU profile: %v\n", err)
			return
		}
		defer pprof.StopCPUProfile()
	}

	if *testall {
		runProfileBattery(opts, *frames)
	} else {
		runSingleProfile(opts, *numNodes, *numEdges, *zoomLevel, *frames)
	}

	// Write memory profile if requested
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create memory profile: %v\n", err)
			return
		}
		defer f.Close()
		runtime.GC() // Get up-to-date statistics
		if err := pprof.WriteHeapProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Could not write memory profile: %v\n", err)
		}
	}

	// Write heap profile if requested
	if *heapprofile != "" {
		f, err := os.Create(*heapprofile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create heap profile: %v\n", err)
			return
		}
		defer f.Close()

		memProfile := pprof.Lookup("heap")
		if memProfile == nil {
			fmt.Fprintf(os.Stderr, "Could not find heap profile\n")
			return
		}

		if err := memProfile.WriteTo(f, 0); err != nil {
			fmt.Fprintf(os.Stderr, "Could not write heap profile: %v\n", err)
		}
	}
}
