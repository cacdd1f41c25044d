package startup

import (
	"fmt"

	"code.cloudfoundry.org/lager/v3"
	"github.com/tedsuo/ifrit"
	"github.com/tedsuo/ifrit/grouper"
)

// ServiceBuilder names a group member and knows how to create it.
type ServiceBuilder struct {
	Name       string
	CreateFunc func() (ifrit.Runner, error)
}

func Service(name string, createFunc func() (ifrit.Runner, error)) ServiceBuilder {
	return ServiceBuilder{
		Name:       name,
		CreateFunc: createFunc,
	}
}

// CreateMembers builds the members in order. The first failure aborts.
func CreateMembers(builders []ServiceBuilder, logger lager.Logger) (grouper.Members, error) {
	var members grouper.Members
	for _, builder := range builders {
		runner, err := builder.CreateFunc()
		if err != nil {
			logger.Error("failed-to-create-service", err, lager.Data{"service": builder.Name})
			return nil, fmt.Errorf("failed to create %s: %w", builder.Name, err)
		}
		members = append(members, grouper.Member{Name: builder.Name, Runner: runner})
	}
	return members, nil
}

// StartService creates the members and runs them until a signal or until
// one of them exits. The returned error is the one that stopped the group.
func StartService(logger lager.Logger, services ...ServiceBuilder) error {
	members, err := CreateMembers(services, logger)
	if err != nil {
		return err
	}
	return StartServices(logger, members)
}
