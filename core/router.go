package core

import (
	"context"
	"errors"
	"log"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

const minPasswordLength = 6

// NewRouter constructs the Gin engine with routes wired. The auth gate runs
// globally ahead of every handler; the access policy decides which routes
// it lets through without a token.
func NewRouter(cfg Config, auth *Authenticator, codec *TokenCodec,
	users UserRepository, portfolios PortfolioRepository,
	experiences ExperienceRepository, educations EducationRepository,
	limiter *LoginLimiter) *gin.Engine {

	r := gin.Default()

	// Global middleware: CORS -> auth gate
	r.Use(CORSMiddleware(cfg))
	r.Use(AuthGate(codec, DefaultAccessPolicy()))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// portfolioDTO assembles the nested response the frontend consumes.
	portfolioDTO := func(ctx context.Context, p PortfolioRecord) (gin.H, error) {
		exps, err := experiences.ListByPortfolio(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if exps == nil {
			exps = []Experience{}
		}
		edus, err := educations.ListByPortfolio(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if edus == nil {
			edus = []Education{}
		}
		return gin.H{
			"id":          p.ID,
			"userId":      p.UserID,
			"experiences": exps,
			"educations":  edus,
		}, nil
	}

	api := r.Group("/api")
	{
		api.POST("/auth/login", func(c *gin.Context) {
			var req struct {
				Email    string `json:"email"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}

			ctx := c.Request.Context()
			if err := limiter.Allow(ctx, req.Email, c.ClientIP()); err != nil {
				if errors.Is(err, ErrRateLimited) {
					respondError(c, http.StatusTooManyRequests, "RATE_LIMITED", "too many attempts, try again later")
					return
				}
				// Throttling is best effort: an unreachable redis must not
				// lock every account out.
				log.Printf("login throttle unavailable: %v", err)
			}

			result, err := auth.Login(ctx, req.Email, req.Password)
			if err != nil {
				if errors.Is(err, ErrInvalidCredentials) {
					respondError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "email or password is incorrect")
					return
				}
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "login failed")
				return
			}
			c.JSON(http.StatusOK, result)
		})

		api.POST("/auth/register", func(c *gin.Context) {
			var req struct {
				Email    string `json:"email"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			req.Email = strings.TrimSpace(req.Email)
			if !emailPattern.MatchString(req.Email) {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "a valid email is required")
				return
			}
			if len(req.Password) < minPasswordLength {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "password must be at least 6 characters")
				return
			}

			ctx := c.Request.Context()
			if err := limiter.Allow(ctx, req.Email, c.ClientIP()); err != nil {
				if errors.Is(err, ErrRateLimited) {
					respondError(c, http.StatusTooManyRequests, "RATE_LIMITED", "too many attempts, try again later")
					return
				}
				log.Printf("register throttle unavailable: %v", err)
			}

			u, err := auth.Register(ctx, req.Email, req.Password)
			if err != nil {
				if errors.Is(err, ErrDuplicateEmail) {
					respondError(c, http.StatusConflict, "CONFLICT", "email already registered")
					return
				}
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to create user")
				return
			}
			c.JSON(http.StatusCreated, gin.H{
				"id":        u.ID,
				"email":     u.Email,
				"createdAt": u.CreatedAt,
			})
		})

		api.POST("/auth/validate", func(c *gin.Context) {
			token, ok := bearerToken(c.GetHeader("Authorization"))
			if !ok {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Authorization header with Bearer token is required")
				return
			}
			c.JSON(http.StatusOK, auth.Validate(token))
		})

		api.GET("/users", func(c *gin.Context) {
			page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
				return
			}
			items, total, err := users.List(c.Request.Context(), page, perPage)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch users")
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"items":       items,
				"page":        page,
				"per_page":    perPage,
				"total_items": total,
				"total_pages": calcTotalPages(total, perPage),
			})
		})

		api.GET("/users/:id", func(c *gin.Context) {
			id, err := parseID(c.Param("id"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
				return
			}
			u, err := users.FindByID(c.Request.Context(), id)
			if err != nil {
				if isNoRows(err) {
					respondError(c, http.StatusNotFound, "NOT_FOUND", "user not found")
					return
				}
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch user")
				return
			}
			c.JSON(http.StatusOK, gin.H{"id": u.ID, "email": u.Email, "createdAt": u.CreatedAt})
		})

		api.PUT("/users/:id", func(c *gin.Context) {
			id, err := parseID(c.Param("id"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
				return
			}
			var req struct {
				Email    *string `json:"email"`
				Password *string `json:"password"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			if req.Email != nil && !emailPattern.MatchString(*req.Email) {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "a valid email is required")
				return
			}
			var hash *string
			if req.Password != nil {
				if len(*req.Password) < minPasswordLength {
					respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "password must be at least 6 characters")
					return
				}
				h, err := HashPassword(*req.Password)
				if err != nil {
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to update user")
					return
				}
				hash = &h
			}
			u, err := users.Update(c.Request.Context(), id, req.Email, hash)
			if err != nil {
				if isNoRows(err) {
					respondError(c, http.StatusNotFound, "NOT_FOUND", "user not found")
					return
				}
				if isUniqueViolation(err) {
					respondError(c, http.StatusConflict, "CONFLICT", "email already registered")
					return
				}
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to update user")
				return
			}
			c.JSON(http.StatusOK, gin.H{"id": u.ID, "email": u.Email, "createdAt": u.CreatedAt})
		})

		api.DELETE("/users/:id", func(c *gin.Context) {
			id, err := parseID(c.Param("id"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
				return
			}
			if err := users.Delete(c.Request.Context(), id); err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to delete user")
				return
			}
			c.Status(http.StatusNoContent)
		})

		api.POST("/portfolios/:userId", func(c *gin.Context) {
			userID, err := parseID(c.Param("userId"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid user id")
				return
			}
			ctx := c.Request.Context()
			if _, err := users.FindByID(ctx, userID); err != nil {
				if isNoRows(err) {
					respondError(c, http.StatusNotFound, "NOT_FOUND", "user not found")
					return
				}
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch user")
				return
			}
			p, err := portfolios.Create(ctx, userID)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to create portfolio")
				return
			}
			c.JSON(http.StatusCreated, gin.H{
				"id":          p.ID,
				"userId":      p.UserID,
				"experiences": []Experience{},
				"educations":  []Education{},
			})
		})

		api.GET("/portfolios", func(c *gin.Context) {
			page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
				return
			}
			ctx := c.Request.Context()
			records, total, err := portfolios.List(ctx, page, perPage)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch portfolios")
				return
			}
			items := make([]gin.H, 0, len(records))
			for _, p := range records {
				dto, err := portfolioDTO(ctx, p)
				if err != nil {
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch portfolios")
					return
				}
				items = append(items, dto)
			}
			c.JSON(http.StatusOK, gin.H{
				"items":       items,
				"page":        page,
				"per_page":    perPage,
				"total_items": total,
				"total_pages": calcTotalPages(total, perPage),
			})
		})

		api.GET("/portfolios/user/:userId", func(c *gin.Context) {
			userID, err := parseID(c.Param("userId"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid user id")
				return
			}
			ctx := c.Request.Context()
			records, err := portfolios.ListByUser(ctx, userID)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch portfolios")
				return
			}
			items := make([]gin.H, 0, len(records))
			for _, p := range records {
				dto, err := portfolioDTO(ctx, p)
				if err != nil {
					respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch portfolios")
					return
				}
				items = append(items, dto)
			}
			c.JSON(http.StatusOK, items)
		})

		api.GET("/portfolios/:id", func(c *gin.Context) {
			id, err := parseID(c.Param("id"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
				return
			}
			ctx := c.Request.Context()
			p, err := portfolios.Get(ctx, id)
			if err != nil {
				if isNoRows(err) {
					respondError(c, http.StatusNotFound, "NOT_FOUND", "portfolio not found")
					return
				}
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch portfolio")
				return
			}
			dto, err := portfolioDTO(ctx, *p)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch portfolio")
				return
			}
			c.JSON(http.StatusOK, dto)
		})

		api.PUT("/portfolios/:id", func(c *gin.Context) {
			id, err := parseID(c.Param("id"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
				return
			}
			var req struct {
				UserID *int64 `json:"userId"`
			}
			if err := c.ShouldBindJSON(&req); err != nil || req.UserID == nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "userId is required")
				return
			}
			ctx := c.Request.Context()
			if _, err := users.FindByID(ctx, *req.UserID); err != nil {
				if isNoRows(err) {
					respondError(c, http.StatusNotFound, "NOT_FOUND", "user not found")
					return
				}
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch user")
				return
			}
			p, err := portfolios.UpdateOwner(ctx, id, *req.UserID)
			if err != nil {
				if isNoRows(err) {
					respondError(c, http.StatusNotFound, "NOT_FOUND", "portfolio not found")
					return
				}
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to update portfolio")
				return
			}
			dto, err := portfolioDTO(ctx, *p)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch portfolio")
				return
			}
			c.JSON(http.StatusOK, dto)
		})

		api.DELETE("/portfolios/:id", func(c *gin.Context) {
			id, err := parseID(c.Param("id"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
				return
			}
			if err := portfolios.Delete(c.Request.Context(), id); err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to delete portfolio")
				return
			}
			c.Status(http.StatusNoContent)
		})

		api.POST("/experiences/:portfolioId", func(c *gin.Context) {
			portfolioID, err := parseID(c.Param("portfolioId"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid portfolio id")
				return
			}
			var in ExperienceInput
			if err := c.ShouldBindJSON(&in); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			if in.Position == nil || strings.TrimSpace(*in.Position) == "" {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "position is required")
				return
			}
			ctx := c.Request.Context()
			if _, err := portfolios.Get(ctx, portfolioID); err != nil {
				if isNoRows(err) {
					respondError(c, http.StatusNotFound, "NOT_FOUND", "portfolio not found")
					return
				}
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch portfolio")
				return
			}
			e, err := experiences.Create(ctx, portfolioID, in)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to create experience")
				return
			}
			c.JSON(http.StatusCreated, e)
		})

		api.GET("/experiences", func(c *gin.Context) {
			items, err := experiences.ListAll(c.Request.Context())
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch experiences")
				return
			}
			if items == nil {
				items = []Experience{}
			}
			c.JSON(http.StatusOK, items)
		})

		api.GET("/experiences/portfolio/:portfolioId", func(c *gin.Context) {
			portfolioID, err := parseID(c.Param("portfolioId"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid portfolio id")
				return
			}
			items, err := experiences.ListByPortfolio(c.Request.Context(), portfolioID)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch experiences")
				return
			}
			if items == nil {
				items = []Experience{}
			}
			c.JSON(http.StatusOK, items)
		})

		api.GET("/experiences/:id", func(c *gin.Context) {
			id, err := parseID(c.Param("id"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
				return
			}
			e, err := experiences.Get(c.Request.Context(), id)
			if err != nil {
				if isNoRows(err) {
					respondError(c, http.StatusNotFound, "NOT_FOUND", "experience not found")
					return
				}
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch experience")
				return
			}
			c.JSON(http.StatusOK, e)
		})

		api.PUT("/experiences/:id", func(c *gin.Context) {
			id, err := parseID(c.Param("id"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
				return
			}
			var in ExperienceInput
			if err := c.ShouldBindJSON(&in); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			e, err := experiences.Update(c.Request.Context(), id, in)
			if err != nil {
				if isNoRows(err) {
					respondError(c, http.StatusNotFound, "NOT_FOUND", "experience not found")
					return
				}
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to update experience")
				return
			}
			c.JSON(http.StatusOK, e)
		})

		api.DELETE("/experiences/:id", func(c *gin.Context) {
			id, err := parseID(c.Param("id"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
				return
			}
			if err := experiences.Delete(c.Request.Context(), id); err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to delete experience")
				return
			}
			c.Status(http.StatusNoContent)
		})

		api.POST("/educations/:portfolioId", func(c *gin.Context) {
			portfolioID, err := parseID(c.Param("portfolioId"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid portfolio id")
				return
			}
			var in EducationInput
			if err := c.ShouldBindJSON(&in); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			if in.TitleOfQualification == nil || strings.TrimSpace(*in.TitleOfQualification) == "" {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "titleOfQualification is required")
				return
			}
			ctx := c.Request.Context()
			if _, err := portfolios.Get(ctx, portfolioID); err != nil {
				if isNoRows(err) {
					respondError(c, http.StatusNotFound, "NOT_FOUND", "portfolio not found")
					return
				}
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch portfolio")
				return
			}
			e, err := educations.Create(ctx, portfolioID, in)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to create education")
				return
			}
			c.JSON(http.StatusCreated, e)
		})

		api.GET("/educations", func(c *gin.Context) {
			items, err := educations.ListAll(c.Request.Context())
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch educations")
				return
			}
			if items == nil {
				items = []Education{}
			}
			c.JSON(http.StatusOK, items)
		})

		api.GET("/educations/portfolio/:portfolioId", func(c *gin.Context) {
			portfolioID, err := parseID(c.Param("portfolioId"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid portfolio id")
				return
			}
			items, err := educations.ListByPortfolio(c.Request.Context(), portfolioID)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch educations")
				return
			}
			if items == nil {
				items = []Education{}
			}
			c.JSON(http.StatusOK, items)
		})

		api.GET("/educations/:id", func(c *gin.Context) {
			id, err := parseID(c.Param("id"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
				return
			}
			e, err := educations.Get(c.Request.Context(), id)
			if err != nil {
				if isNoRows(err) {
					respondError(c, http.StatusNotFound, "NOT_FOUND", "education not found")
					return
				}
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch education")
				return
			}
			c.JSON(http.StatusOK, e)
		})

		api.PUT("/educations/:id", func(c *gin.Context) {
			id, err := parseID(c.Param("id"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
				return
			}
			var in EducationInput
			if err := c.ShouldBindJSON(&in); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			e, err := educations.Update(c.Request.Context(), id, in)
			if err != nil {
				if isNoRows(err) {
					respondError(c, http.StatusNotFound, "NOT_FOUND", "education not found")
					return
				}
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to update education")
				return
			}
			c.JSON(http.StatusOK, e)
		})

		api.DELETE("/educations/:id", func(c *gin.Context) {
			id, err := parseID(c.Param("id"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
				return
			}
			if err := educations.Delete(c.Request.Context(), id); err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to delete education")
				return
			}
			c.Status(http.StatusNoContent)
		})
	}

	return r
}
