package dashboard

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/halverson/gamefleet/internal/models"
	"github.com/halverson/gamefleet/internal/status"
)

// registerRoutes sets up the read-only API on the Gin router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	router.GET("/api/fleet", handleFleet(opts))
	router.GET("/api/instances", handleInstances(opts))
	router.GET("/api/instances/:index", handleInstanceDetail(opts))
	router.GET("/api/events", handleSSE(opts))
}

func handleFleet(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		fs, err := status.Collect(opts.DB, opts.Pool, opts.Cfg)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, fs)
	}
}

func handleInstances(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		var instances []models.Instance
		if err := opts.DB.Order("`index`").Find(&instances).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, instances)
	}
}

// handleInstanceDetail returns one instance with its recent health history
// and events.
func handleInstanceDetail(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		index, err := strconv.Atoi(c.Param("index"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "index must be an integer"})
			return
		}

		var inst models.Instance
		if err := opts.DB.Where("`index` = ?", index).First(&inst).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "instance not found"})
			return
		}

		var records []models.HealthRecord
		opts.DB.Where("instance_index = ?", index).
			Order("id DESC").Limit(50).Find(&records)

		var events []models.Event
		opts.DB.Where("instance_index = ?", index).
			Order("id DESC").Limit(50).Find(&events)

		c.JSON(http.StatusOK, gin.H{
			"instance":       inst,
			"health_records": records,
			"events":         events,
		})
	}
}
