package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aweris/vcache/internal/ghrepo"
	"github.com/aweris/vcache/internal/ocitag"
)

var rootCmd = &cobra.Command{
	Use:   "vcache",
	Short: "Hash-validated object cache CLI",
	Long:  "CLI for validating and refreshing cached objects against a GitHub owner or an OCI repository.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ~/.config/vcache/config.yaml)")
	rootCmd.PersistentFlags().String("backend", "", "backend kind: github or oci")
	rootCmd.PersistentFlags().String("github-owner", "", "GitHub owner (org or user) for the github backend")
	rootCmd.PersistentFlags().String("oci-repository", "", "repository ref for the oci backend (e.g. ttl.sh/myorg/cache)")
	rootCmd.PersistentFlags().Int("concurrency", 0, "max concurrent refresh fetches (0 = unlimited)")

	viper.BindPFlag("backend", rootCmd.PersistentFlags().Lookup("backend"))
	viper.BindPFlag("github_owner", rootCmd.PersistentFlags().Lookup("github-owner"))
	viper.BindPFlag("oci_repository", rootCmd.PersistentFlags().Lookup("oci-repository"))
	viper.BindPFlag("concurrency", rootCmd.PersistentFlags().Lookup("concurrency"))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("VCACHE")
	viper.AutomaticEnv()
	viper.SetDefault("backend", "github")

	viper.ReadInConfig()
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "vcache")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "vcache")
	}
	return ".vcache"
}

func openGitHub() (*ghrepo.Backend, error) {
	owner := viper.GetString("github_owner")
	if owner == "" {
		return nil, fmt.Errorf("github backend requires --github-owner or VCACHE_GITHUB_OWNER")
	}
	return ghrepo.NewWithToken(viper.GetString("github_token"), owner), nil
}

func openOCI() (*ocitag.Backend, error) {
	repo := viper.GetString("oci_repository")
	if repo == "" {
		return nil, fmt.Errorf("oci backend requires --oci-repository or VCACHE_OCI_REPOSITORY")
	}
	return ocitag.New(repo)
}

func printRepo(repo *ghrepo.Repo) {
	sha := repo.HeadSHA
	if len(sha) > 12 {
		sha = sha[:12]
	}
	fmt.Printf("%s\t%s\t%s\n", repo.FullName, sha, repo.Description)
}

func printArtifact(art *ocitag.Artifact) {
	fmt.Printf("%s\t%s\t%s\t%d bytes\n", art.Tag, art.Digest, art.MediaType, len(art.Payload))
}
