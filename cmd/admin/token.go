package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fitcoach/backend/pkg/jwt"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "签发开发用 Access Token",
	Long:  "生产环境 Token 由上游身份服务签发，本命令仅用于本地联调。",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		userID, _ := cmd.Flags().GetString("user")
		role, _ := cmd.Flags().GetString("role")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		switch role {
		case jwt.RoleAdmin, jwt.RoleService, jwt.RoleUser:
		default:
			return fmt.Errorf("--role 仅支持 %s / %s / %s", jwt.RoleAdmin, jwt.RoleService, jwt.RoleUser)
		}

		token, err := jwt.NewManager(&cfg.Auth).GenerateAccessToken(userID, role, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("user", "admin-dev", "user_id 声明")
	tokenCmd.Flags().String("role", jwt.RoleAdmin, "角色：admin / service / user")
	tokenCmd.Flags().Duration("ttl", time.Hour, "有效期")
}
