// Package autoload initializes the global logger from LOG_* environment
// variables on import. Blank-import it from main.
package autoload

import (
	configx "github.com/shoplight-ai/campaignchat/pkg/config"
	logx "github.com/shoplight-ai/campaignchat/pkg/logger"
)

func init() {
	logx.Init(*configx.MustLoad[logx.Config]("LOG"))
}
