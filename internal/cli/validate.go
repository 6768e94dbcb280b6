package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewValidateCommand creates the "validate" command: it runs the whole
// pipeline and renders the normalized project, so users can see the
// result of interpolation, merging, and extends resolution.
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the compose files and print the normalized project",

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := loadProject()
			if err != nil {
				return err
			}

			doc := map[string]any{
				"name": project.Name,
			}
			services := make(map[string]any, len(project.Services))
			for _, name := range project.ServiceNames() {
				svc := project.Services[name]
				entry := map[string]any{}
				if svc.Image != "" {
					entry["image"] = svc.Image
				}
				if svc.Build != nil {
					entry["build"] = map[string]any{
						"context":    svc.Build.Context,
						"dockerfile": svc.Build.Dockerfile,
					}
				}
				if len(svc.Environment) > 0 {
					entry["environment"] = svc.Environment
				}
				if len(svc.Ports) > 0 {
					ports := make([]string, 0, len(svc.Ports))
					for _, port := range svc.Ports {
						ports = append(ports, port.Key())
					}
					entry["ports"] = ports
				}
				if len(svc.Networks) > 0 {
					entry["networks"] = svc.Networks
				}
				if deps := svc.AllDependencies(); len(deps) > 0 {
					entry["depends_on"] = deps
				}
				services[name] = entry
			}
			doc["services"] = services

			data, err := yaml.Marshal(doc)
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	}
}
