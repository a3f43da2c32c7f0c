package integration

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/docker/distribution/reference"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

var stopTimeout = 10 * time.Second

type dockerClient struct {
	*client.Client
}

func newDockerClient() (*dockerClient, error) {
	cli, err := client.NewEnvClient()
	if err != nil {
		return nil, fmt.Errorf("unable to create docker client: %w", err)
	}
	return &dockerClient{cli}, nil
}

type containerSpec struct {
	image         string
	env           []string
	cmd           []string
	hostPort      int
	containerPort int
}

// start pulls the image and starts a container publishing a single tcp port.
func (d *dockerClient) start(ctx context.Context, spec containerSpec) (string, error) {
	named, err := reference.ParseNormalizedNamed(spec.image)
	if err != nil {
		return "", fmt.Errorf("unable to normalize image name: %w", err)
	}
	image := named.String()

	out, err := d.ImagePull(ctx, image, types.ImagePullOptions{})
	if err != nil {
		return "", fmt.Errorf("unable to pull image: %w", err)
	}
	io.Copy(io.Discard, out)
	out.Close()

	port, err := nat.NewPort("tcp", fmt.Sprintf("%d", spec.containerPort))
	if err != nil {
		return "", fmt.Errorf("invalid container port: %w", err)
	}

	created, err := d.ContainerCreate(ctx,
		&container.Config{
			Image:        image,
			Env:          spec.env,
			Cmd:          spec.cmd,
			ExposedPorts: nat.PortSet{port: struct{}{}},
		},
		&container.HostConfig{
			PortBindings: nat.PortMap{
				port: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: fmt.Sprintf("%d", spec.hostPort)}},
			},
		},
		&network.NetworkingConfig{}, nil, "")
	if err != nil {
		return "", fmt.Errorf("could not create container: %w", err)
	}

	if err := d.ContainerStart(ctx, created.ID, types.ContainerStartOptions{}); err != nil {
		return "", fmt.Errorf("unable to start the container: %w", err)
	}
	fmt.Printf("container %s is started\n", created.ID)
	return created.ID, nil
}

func (d *dockerClient) remove(ctx context.Context, id string) error {
	if err := d.ContainerStop(ctx, id, &stopTimeout); err != nil {
		return fmt.Errorf("failed stopping container: %w", err)
	}

	err := d.ContainerRemove(ctx, id, types.ContainerRemoveOptions{RemoveVolumes: true})
	if err != nil {
		return fmt.Errorf("failed removing container: %w", err)
	}
	fmt.Printf("container %s is removed\n", id)
	return nil
}

func (d *dockerClient) dumpLogs(ctx context.Context, id string) error {
	out, err := d.ContainerLogs(ctx, id, types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Timestamps: true,
	})
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(os.Stdout, out)
	return err
}
