package handler

import "github.com/gin-gonic/gin"

// Middlewares are the per-route guards RegisterRoutes attaches. Auth is
// required; a nil rate limiter lets every request through.
type Middlewares struct {
	Auth     gin.HandlerFunc
	OtpLimit gin.HandlerFunc
	// VerifyLimit guards /otp/verify separately so guesses and sends are
	// counted in their own windows.
	VerifyLimit gin.HandlerFunc
}

func RegisterRoutes(r gin.IRouter, h *AccountHandler, mw Middlewares) {
	r.GET("/health", Health)

	r.POST("/user-registration", h.Register)
	r.POST("/user/login", h.Login)
	r.POST("/otp", orPass(mw.OtpLimit), h.RequestOtp)
	r.POST("/otp/verify", orPass(mw.VerifyLimit), h.VerifyOtp)

	authed := r.Group("", mw.Auth)
	{
		authed.GET("/user/profile", h.GetProfile)
		authed.GET("/logout", h.Logout)
		authed.POST("/profile/update", h.UpdateProfile)
		authed.POST("/reset/password", h.ResetPassword)
	}
}

func orPass(mw gin.HandlerFunc) gin.HandlerFunc {
	if mw == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return mw
}
