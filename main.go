package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"web/graphview/render"
	"web/graphview/runner"
)

const SCENE_SAVE_DIR = "data/scenes"

func formatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

// parseFrameInput reads the viewport and interaction state from query
// parameters shared by the frame and summary endpoints.
func parseFrameInput(c *gin.Context) (render.FrameInput, error) {
	var in render.FrameInput

	zoom, err := strconv.ParseFloat(c.Query("zoom"), 64)
	if err != nil {
		return in, fmt.Errorf("invalid zoom parameter")
	}
	width, err := strconv.ParseFloat(c.Query("width"), 64)
	if err != nil {
		return in, fmt.Errorf("invalid width parameter")
	}
	height, err := strconv.ParseFloat(c.Query("height"), 64)
	if err != nil {
		return in, fmt.Errorf("invalid height parameter")
	}

	// Pan defaults to zero so a bare zoom/width/height query works.
	panX, _ := strconv.ParseFloat(c.DefaultQuery("panX", "0"), 64)
	panY, _ := strconv.ParseFloat(c.DefaultQuery("panY", "0"), 64)

	in.Viewport = render.Viewport{
		Zoom:   zoom,
		Width:  width,
		Height: height,
		PanX:   panX,
		PanY:   panY,
	}

	if selected := c.Query("selected"); selected != "" {
		in.Selected = make(map[uint32]bool)
		for _, part := range strings.Split(selected, ",") {
			id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32)
			if err != nil {
				return in, fmt.Errorf("invalid selected parameter")
			}
			in.Selected[uint32(id)] = true
		}
	}

	if hovered := c.Query("hovered"); hovered != "" {
		id, err := strconv.ParseUint(hovered, 10, 32)
		if err != nil {
			return in, fmt.Errorf("invalid hovered parameter")
		}
		in.Hovered = uint32(id)
		in.HasHovered = true
	}

	in.SkipBundling = c.Query("skipBundling") == "true"

	return in, nil
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	registry := prometheus.NewRegistry()
	metrics := render.NewMetrics(registry)

	scenes, err := runner.NewSceneRunner(SCENE_SAVE_DIR, 4, logger)
	if err != nil {
		logger.Fatal("Failed to create scene runner", zap.Error(err))
	}
	defer scenes.Close()
	scenes.SetMetrics(metrics)

	r := gin.Default()

	// Enable CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Create new scene
	r.POST("/api/scenes", func(c *gin.Context) {
		var req struct {
			NumNodes int `json:"numNodes"`
			NumEdges int `json:"numEdges"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}

		info, err := scenes.CreateScene(req.NumNodes, req.NumEdges)
		if err != nil {
			logger.Error("Failed to create scene", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		logger.Info("Scene created",
			zap.String("id", info.ID),
			zap.Int("numNodes", info.NumNodes),
			zap.String("fileSize", formatFileSize(info.FileSize)))
		c.JSON(http.StatusOK, gin.H{"scene": info})
	})

	// List available scene snapshots
	r.GET("/api/scenes/list", func(c *gin.Context) {
		list, err := scenes.ListScenes()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, list)
	})

	// Load a scene snapshot into memory
	r.POST("/api/scenes/:id/load", func(c *gin.Context) {
		id := c.Param("id")
		info, err := scenes.LoadScene(id)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Scene loaded successfully", "scene": info})
	})

	// Render one frame for the given viewport
	r.GET("/api/scenes/:id/frame", func(c *gin.Context) {
		in, err := parseFrameInput(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		plan, err := scenes.RenderFrame(c.Param("id"), in)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, plan)
	})

	// Aggregate statistics for one frame
	r.GET("/api/scenes/:id/summary", func(c *gin.Context) {
		in, err := parseFrameInput(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		summary, err := scenes.Summarize(c.Param("id"), in)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	})

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// Create a channel to listen for interrupt signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting server on :8000")
		if err := r.Run(":8000"); err != nil {
			logger.Error("Server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Shutting down server")
}
